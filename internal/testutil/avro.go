package testutil

import (
	"bytes"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/require"
)

// EncodeAvro writes records into an Avro object container with the given
// writer schema. Records may be structs tagged with `avro:"name"` or
// generic maps.
func EncodeAvro(t testing.TB, schema string, records ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema, &buf)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, enc.Close())
	return buf.Bytes()
}
