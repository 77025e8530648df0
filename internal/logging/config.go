// Package logging builds the zap logger used by the deltaview server and CLI.
package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Encoding formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds the configuration for logging.
type Config struct {
	// Level is a zap level name ("debug", "info", "warn", "error").
	// Defaults to info.
	Level string

	// Format selects the encoder: "json" (default) or "console".
	Format string

	// DisableConsoleOutput stops logs from being written to stderr.
	// Ignored when no log file is configured.
	DisableConsoleOutput bool

	// Logger holds the rotation knobs. Filename enables file output.
	lumberjack.Logger
}

// Option is a configuration option for logging.
type Option func(*Config) error

func defaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
	}
}

// Validate ensures the logging Config is valid.
func (c *Config) Validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("maxsize must be >= 0, not %d", c.MaxSize)
	}
	if c.MaxBackups < 0 {
		return fmt.Errorf("maxbackups must be >= 0, not %d", c.MaxBackups)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("maxage days must be >= 0, not %d", c.MaxAge)
	}
	if c.Format != FormatJSON && c.Format != FormatConsole {
		return fmt.Errorf("invalid format %q", c.Format)
	}
	if _, err := c.zapLevel(); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	return nil
}

func (c *Config) zapLevel() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(c.Level)
}

// WithLevel sets the level.
func WithLevel(level string) Option {
	return func(c *Config) error {
		c.Level = level
		return nil
	}
}

// WithFormat sets the encoder format.
func WithFormat(format string) Option {
	return func(c *Config) error {
		c.Format = format
		return nil
	}
}

// WithFile enables rotated file output to filename.
func WithFile(filename string) Option {
	return func(c *Config) error {
		c.Filename = filename
		return nil
	}
}

// Apply takes the supplied options and applies them to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig creates a new logging config with the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}
