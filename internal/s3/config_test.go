package s3

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresRegion(t *testing.T) {
	_, err := NewClient(t.Context(), ClientConfig{})
	assert.Error(t, err)
}

func TestNewClient_StaticCredentials(t *testing.T) {
	client, err := NewClient(t.Context(), ClientConfig{
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
	})
	require.NoError(t, err)

	creds, err := client.Options().Credentials.Retrieve(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "SECRET", creds.SecretAccessKey)
}

func TestClientOptions(t *testing.T) {
	var o s3.Options
	for _, fn := range clientOptions(ClientConfig{Endpoint: "http://localhost:9000", UsePathStyle: true}) {
		fn(&o)
	}
	require.NotNil(t, o.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *o.BaseEndpoint)
	assert.True(t, o.UsePathStyle)

	assert.Empty(t, clientOptions(ClientConfig{}))
}
