// Package config loads deltaview settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/justapithecus/deltaview/deltaview"
	"github.com/justapithecus/deltaview/internal/logging"
	"github.com/justapithecus/deltaview/internal/s3"
)

// DefaultEnvFile is read when present and no other file is named.
const DefaultEnvFile = ".env"

// Config holds the settings shared by the server and the CLI.
type Config struct {
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id" validate:"required_without=LocalRoot"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key" validate:"required_without=LocalRoot"`
	AWSRegion          string `mapstructure:"aws_region" validate:"required"`
	S3EndpointURL      string `mapstructure:"s3_endpoint_url" validate:"omitempty,url"`
	S3BucketName       string `mapstructure:"s3_bucket_name" validate:"required_without=LocalRoot"`

	// S3UsePathStyle defaults to true when S3EndpointURL is set.
	S3UsePathStyle bool `mapstructure:"s3_use_path_style"`

	// LocalRoot serves a local directory instead of a bucket.
	LocalRoot string `mapstructure:"local_root"`

	MaxPreviewRows  int   `mapstructure:"max_preview_rows" validate:"gt=0"`
	MaxPreviewBytes int   `mapstructure:"max_preview_bytes" validate:"gt=0"`
	MaxParseBytes   int64 `mapstructure:"max_parse_bytes" validate:"gt=0"`

	ListenAddr   string        `mapstructure:"listen_addr" validate:"required,hostname_port"`
	ListPageSize int           `mapstructure:"list_page_size" validate:"gte=0,lte=1000"`
	WriteTimeout time.Duration `mapstructure:"http_write_timeout" validate:"gte=0"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Option defines a function that applies configuration options.
type Option func(*Config) error

var envKeys = []string{
	"aws_access_key_id",
	"aws_secret_access_key",
	"aws_region",
	"s3_endpoint_url",
	"s3_bucket_name",
	"s3_use_path_style",
	"local_root",
	"max_preview_rows",
	"max_preview_bytes",
	"max_parse_bytes",
	"listen_addr",
	"list_page_size",
	"http_write_timeout",
	"log_level",
	"log_format",
	"log_file",
}

func defaultConfig() *Config {
	return &Config{
		AWSRegion:       "us-east-1",
		MaxPreviewRows:  deltaview.DefaultRowLimit,
		MaxPreviewBytes: deltaview.DefaultByteCap,
		MaxParseBytes:   deltaview.DefaultParseCap,
		ListenAddr:      "0.0.0.0:5000",
		ListPageSize:    500,
		WriteTimeout:    60 * time.Second,
		LogLevel:        "info",
		LogFormat:       logging.FormatJSON,
	}
}

// NewViper returns a Viper instance bound to the process environment and,
// when envFile exists, to the variables it defines. Environment variables
// win over the file. A missing envFile is only an error when it is not
// DefaultEnvFile.
func NewViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding %s: %w", k, err)
		}
	}

	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && envFile == DefaultEnvFile {
			return v, nil
		}
		return nil, fmt.Errorf("env file: %w", err)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	return v, nil
}

// WithViper loads configuration using Viper.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}
		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("error unmarshalling config: %w", err)
		}
		if !v.IsSet("s3_use_path_style") && c.S3EndpointURL != "" {
			c.S3UsePathStyle = true
		}
		return nil
	}
}

// WithLocalRoot serves dir instead of a bucket.
func WithLocalRoot(dir string) Option {
	return func(c *Config) error {
		c.LocalRoot = dir
		return nil
	}
}

// Apply applies the given options to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o != nil {
			if err := o(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewConfig builds and returns a new configuration from the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, fmt.Errorf("failed to apply config options: %w", err)
	}
	return c, nil
}

// Load reads the environment and envFile, then validates the result.
func Load(envFile string, opts ...Option) (*Config, error) {
	v, err := NewViper(envFile)
	if err != nil {
		return nil, err
	}
	c, err := NewConfig(append([]Option{WithViper(v)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	lc, err := c.Logging()
	if err != nil {
		return err
	}
	return lc.Validate()
}

// Limits returns the preview bounds.
func (c *Config) Limits() deltaview.Limits {
	return deltaview.Limits{
		RowLimit: c.MaxPreviewRows,
		ByteCap:  c.MaxPreviewBytes,
		ParseCap: c.MaxParseBytes,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() (*logging.Config, error) {
	return logging.NewConfig(
		logging.WithLevel(c.LogLevel),
		logging.WithFormat(c.LogFormat),
		logging.WithFile(c.LogFile),
	)
}

// S3Client returns the S3 client configuration.
func (c *Config) S3Client() s3.ClientConfig {
	return s3.ClientConfig{
		Region:          c.AWSRegion,
		Endpoint:        c.S3EndpointURL,
		UsePathStyle:    c.S3UsePathStyle,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
	}
}
