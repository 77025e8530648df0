package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/deltaview/deltaview"
)

func setS3Env(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	t.Setenv("S3_BUCKET_NAME", "data-lake")
}

func TestLoad_Defaults(t *testing.T) {
	setS3Env(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", c.AWSRegion)
	assert.Equal(t, "data-lake", c.S3BucketName)
	assert.Equal(t, "0.0.0.0:5000", c.ListenAddr)
	assert.Equal(t, 60*time.Second, c.WriteTimeout)
	assert.False(t, c.S3UsePathStyle)
	assert.Equal(t, deltaview.DefaultLimits(), c.Limits())
}

func TestLoad_Environment(t *testing.T) {
	setS3Env(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("S3_ENDPOINT_URL", "http://localhost:9000")
	t.Setenv("MAX_PREVIEW_ROWS", "25")
	t.Setenv("MAX_PREVIEW_BYTES", "4096")
	t.Setenv("HTTP_WRITE_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", c.AWSRegion)
	assert.True(t, c.S3UsePathStyle, "endpoint implies path-style")
	assert.Equal(t, 25, c.Limits().RowLimit)
	assert.Equal(t, 4096, c.Limits().ByteCap)
	assert.Equal(t, 5*time.Second, c.WriteTimeout)
	assert.Equal(t, "debug", c.LogLevel)

	cc := c.S3Client()
	assert.Equal(t, "eu-west-1", cc.Region)
	assert.Equal(t, "http://localhost:9000", cc.Endpoint)
	assert.Equal(t, "AKID", cc.AccessKeyID)
	assert.Equal(t, "SECRET", cc.SecretAccessKey)
}

func TestLoad_PathStyleOverride(t *testing.T) {
	setS3Env(t)
	t.Setenv("S3_ENDPOINT_URL", "https://s3.example.com")
	t.Setenv("S3_USE_PATH_STYLE", "false")

	c, err := Load("")
	require.NoError(t, err)
	assert.False(t, c.S3UsePathStyle)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deltaview.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AWS_ACCESS_KEY_ID=filekey\n"+
			"AWS_SECRET_ACCESS_KEY=filesecret\n"+
			"S3_BUCKET_NAME=from-file\n"+
			"MAX_PREVIEW_ROWS=7\n",
	), 0o600))
	t.Setenv("S3_BUCKET_NAME", "from-env")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "filekey", c.AWSAccessKeyID)
	assert.Equal(t, "from-env", c.S3BucketName, "environment wins over the file")
	assert.Equal(t, 7, c.MaxPreviewRows)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	setS3Env(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_LocalRootSkipsS3Requirements(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("S3_BUCKET_NAME", "")

	_, err := Load("")
	require.Error(t, err, "bucket and credentials are required")

	c, err := Load("", WithLocalRoot(t.TempDir()))
	require.NoError(t, err)
	assert.NotEmpty(t, c.LocalRoot)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rows", func(c *Config) { c.MaxPreviewRows = 0 }},
		{"negative bytes", func(c *Config) { c.MaxPreviewBytes = -1 }},
		{"zero parse cap", func(c *Config) { c.MaxParseBytes = 0 }},
		{"bad endpoint", func(c *Config) { c.S3EndpointURL = "not a url" }},
		{"bad listen addr", func(c *Config) { c.ListenAddr = "nowhere" }},
		{"page size too large", func(c *Config) { c.ListPageSize = 5000 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"bad log format", func(c *Config) { c.LogFormat = "yaml" }},
		{"no region", func(c *Config) { c.AWSRegion = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfig(WithLocalRoot("/srv/data"))
			require.NoError(t, err)
			require.NoError(t, c.Validate())

			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestWithViper_Nil(t *testing.T) {
	_, err := NewConfig(WithViper(nil))
	assert.Error(t, err)
}
