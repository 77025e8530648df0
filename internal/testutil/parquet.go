package testutil

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Dynamic schemas
// -----------------------------------------------------------------------------

// ParquetType enumerates the column types a fixture can declare.
type ParquetType int

// Parquet fixture column types.
const (
	ParquetInt32 ParquetType = iota
	ParquetInt64
	ParquetFloat32
	ParquetFloat64
	ParquetString
	ParquetBool
	ParquetBytes
	ParquetTimestamp
	ParquetDate
	ParquetUUID
)

// ParquetField defines a single column of a fixture schema.
type ParquetField struct {
	Name     string
	Type     ParquetType
	Nullable bool
}

// ParquetCompression specifies internal Parquet page compression.
type ParquetCompression int

// Parquet page compression options.
const (
	ParquetCompressionNone ParquetCompression = iota
	ParquetCompressionSnappy
	ParquetCompressionGzip
)

// ParquetOptions configures EncodeParquet.
type ParquetOptions struct {
	Compression ParquetCompression

	// RowGroupSize splits records into row groups of this many rows.
	// Zero writes a single row group.
	RowGroupSize int
}

// EncodeParquet writes records as a Parquet file with the given columns.
// Values are matched to columns by name; nil or missing values are null and
// require a nullable column.
func EncodeParquet(t testing.TB, fields []ParquetField, records []map[string]any, opts ParquetOptions) []byte {
	t.Helper()

	group := make(parquet.Group, len(fields))
	byName := make(map[string]ParquetField, len(fields))
	for _, f := range fields {
		group[f.Name] = fieldNode(f)
		byName[f.Name] = f
	}
	schema := parquet.NewSchema("record", group)

	// Group fields are stored sorted by name; rows follow that order.
	order := make([]string, 0, len(fields))
	for _, f := range schema.Fields() {
		order = append(order, f.Name())
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, compressionOption(opts.Compression))
	groupSize := opts.RowGroupSize
	if groupSize <= 0 {
		groupSize = max(len(records), 1)
	}
	for start := 0; start < len(records); start += groupSize {
		rows := parquet.NewBuffer(schema)
		for i, record := range records[start:min(start+groupSize, len(records))] {
			row, err := recordToRow(order, byName, record)
			require.NoError(t, err, "record %d", start+i)
			_, err = rows.WriteRows([]parquet.Row{row})
			require.NoError(t, err)
		}
		_, err := w.WriteRowGroup(rows)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func fieldNode(f ParquetField) parquet.Node {
	var node parquet.Node
	switch f.Type {
	case ParquetInt32:
		node = parquet.Int(32)
	case ParquetInt64:
		node = parquet.Int(64)
	case ParquetFloat32:
		node = parquet.Leaf(parquet.FloatType)
	case ParquetFloat64:
		node = parquet.Leaf(parquet.DoubleType)
	case ParquetString:
		node = parquet.String()
	case ParquetBool:
		node = parquet.Leaf(parquet.BooleanType)
	case ParquetBytes:
		node = parquet.Leaf(parquet.ByteArrayType)
	case ParquetTimestamp:
		node = parquet.Timestamp(parquet.Microsecond)
	case ParquetDate:
		node = parquet.Date()
	case ParquetUUID:
		node = parquet.UUID()
	default:
		panic(fmt.Sprintf("invalid ParquetType %d for field %q", f.Type, f.Name))
	}
	if f.Nullable {
		node = parquet.Optional(node)
	}
	return node
}

func compressionOption(c ParquetCompression) parquet.WriterOption {
	switch c {
	case ParquetCompressionSnappy:
		return parquet.Compression(&parquet.Snappy)
	case ParquetCompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	default:
		return parquet.Compression(&parquet.Uncompressed)
	}
}

func recordToRow(order []string, fields map[string]ParquetField, record map[string]any) (parquet.Row, error) {
	row := make(parquet.Row, len(order))
	for i, name := range order {
		f := fields[name]
		val := record[name]
		if val == nil {
			if !f.Nullable {
				return nil, fmt.Errorf("missing required field %q", name)
			}
			row[i] = parquet.NullValue().Level(0, 0, i)
			continue
		}
		pv, err := toValue(f, val)
		if err != nil {
			return nil, err
		}
		def := 0
		if f.Nullable {
			def = 1
		}
		row[i] = pv.Level(0, def, i)
	}
	return row, nil
}

func toValue(f ParquetField, val any) (parquet.Value, error) {
	switch f.Type {
	case ParquetInt32:
		if v, ok := val.(int); ok {
			return parquet.Int32Value(int32(v)), nil
		}
	case ParquetInt64:
		if v, ok := val.(int); ok {
			return parquet.Int64Value(int64(v)), nil
		}
	case ParquetFloat32:
		if v, ok := val.(float64); ok {
			return parquet.FloatValue(float32(v)), nil
		}
	case ParquetFloat64:
		if v, ok := val.(float64); ok {
			return parquet.DoubleValue(v), nil
		}
	case ParquetString:
		if v, ok := val.(string); ok {
			return parquet.ByteArrayValue([]byte(v)), nil
		}
	case ParquetBool:
		if v, ok := val.(bool); ok {
			return parquet.BooleanValue(v), nil
		}
	case ParquetBytes:
		if v, ok := val.([]byte); ok {
			return parquet.ByteArrayValue(v), nil
		}
	case ParquetTimestamp:
		if v, ok := val.(time.Time); ok {
			return parquet.Int64Value(v.UnixMicro()), nil
		}
	case ParquetDate:
		if v, ok := val.(time.Time); ok {
			return parquet.Int32Value(int32(v.Unix() / 86400)), nil
		}
	case ParquetUUID:
		if v, ok := val.([16]byte); ok {
			return parquet.FixedLenByteArrayValue(v[:]), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("field %q: unexpected %T", f.Name, val)
}

// -----------------------------------------------------------------------------
// Struct rows
// -----------------------------------------------------------------------------

// WriteParquet writes rows as a Parquet file using the struct tags of T.
// Nested structs, slices and maps become groups, lists and maps.
func WriteParquet[T any](t testing.TB, rows []T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}
