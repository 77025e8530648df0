package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	c, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "info", c.Level)
	assert.Equal(t, FormatJSON, c.Format)
	assert.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"bad level", []Option{WithLevel("loud")}},
		{"bad format", []Option{WithFormat("xml")}},
		{"negative maxsize", []Option{func(c *Config) error { c.MaxSize = -1; return nil }}},
		{"negative maxage", []Option{func(c *Config) error { c.MaxAge = -1; return nil }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfig(tt.opts...)
			require.NoError(t, err)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	c, err := NewConfig(WithLevel("debug"), WithFormat(FormatConsole), WithFile("/tmp/deltaview.log"), nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Level)
	assert.Equal(t, FormatConsole, c.Format)
	assert.Equal(t, "/tmp/deltaview.log", c.Filename)
	assert.NoError(t, c.Validate())
}

func TestNewLogger_Console(t *testing.T) {
	c, err := NewConfig(WithLevel("warn"))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, err := newLogger(c, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deltaview.log")
	c, err := NewConfig(WithFile(path), func(c *Config) error {
		c.DisableConsoleOutput = true
		return nil
	})
	require.NoError(t, err)

	var console bytes.Buffer
	logger, err := newLogger(c, &console)
	require.NoError(t, err)
	logger.Info("to file")
	_ = logger.Sync()
	require.NoError(t, c.Logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))
	assert.Empty(t, console.String())
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger(&Config{Level: "nope", Format: FormatJSON})
	assert.Error(t, err)
}
