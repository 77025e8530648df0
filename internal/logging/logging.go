package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger writing to stderr and, when Filename is
// set, to a rotated log file.
func NewLogger(config *Config) (*zap.Logger, error) {
	return newLogger(config, os.Stderr)
}

func newLogger(config *Config, console io.Writer) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	level, _ := config.zapLevel()
	encoder := newEncoder(config)

	var cores []zapcore.Core
	if config.Filename != "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(&config.Logger), level))
	}
	if config.Filename == "" || !config.DisableConsoleOutput {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(console)), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func newEncoder(config *Config) zapcore.Encoder {
	if config.Format == FormatConsole {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}
