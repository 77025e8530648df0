package deltaview

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
)

// parquetBatchSize is the number of rows requested per ReadRows call.
const parquetBatchSize = 128

// julianUnixEpoch is the Julian day number of 1970-01-01, used by INT96
// timestamps.
const julianUnixEpoch = 2440588

// errEmptyParquet reports a zero-length object.
var errEmptyParquet = errors.New("empty file")

// -----------------------------------------------------------------------------
// Columns
// -----------------------------------------------------------------------------

// parquetLeaf is one leaf column of a Parquet schema.
type parquetLeaf struct {
	name     string
	path     []string
	node     parquet.Node
	repeated bool
}

// parquetLeaves returns the schema's leaf columns in column-index order.
func parquetLeaves(schema *parquet.Schema) []parquetLeaf {
	paths := schema.Columns()
	leaves := make([]parquetLeaf, 0, len(paths))
	for _, p := range paths {
		col, ok := schema.Lookup(p...)
		if !ok {
			continue
		}
		leaves = append(leaves, parquetLeaf{
			name:     leafName(p, col.MaxRepetitionLevel > 0),
			path:     p,
			node:     col.Node,
			repeated: col.MaxRepetitionLevel > 0,
		})
	}
	return leaves
}

// listWrappers are the intermediate segments writers use for LIST and MAP
// groups; they are hidden from column names.
var listWrappers = []string{".list.element", ".list.item", ".bag.array_element", ".array"}

// leafName joins a leaf path with dots, dropping list wrapper segments.
func leafName(path []string, repeated bool) string {
	name := strings.Join(path, ".")
	if !repeated {
		return name
	}
	for _, w := range listWrappers {
		if strings.HasSuffix(name, w) {
			return strings.TrimSuffix(name, w)
		}
	}
	if strings.Contains(name, ".key_value.") {
		return strings.Replace(name, ".key_value.", ".", 1)
	}
	return name
}

// -----------------------------------------------------------------------------
// Reading
// -----------------------------------------------------------------------------

// readParquet reads at most limit rows from a Parquet file.
func readParquet(r io.ReaderAt, size int64, limit int) (*PreviewRecord, error) {
	if size == 0 {
		return nil, errEmptyParquet
	}

	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	schema := file.Schema()
	leaves := parquetLeaves(schema)
	b := newRecordBuilder(FormatParquet)
	for _, leaf := range leaves {
		b.column(leaf.name)
	}

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	rows := make([]parquet.Row, parquetBatchSize)
	for b.len() < limit {
		want := min(parquetBatchSize, limit-b.len())
		n, err := reader.ReadRows(rows[:want])
		for i := 0; i < n; i++ {
			b.add(parquetRow(leaves, rows[i]), nil)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	total := file.NumRows()
	rec := b.finish(total > int64(b.len()))
	rec.TotalRowsEstimate = &total
	rec.Schema = schema.String()
	return rec, nil
}

// parquetRow groups a row's values by leaf column and converts each cell.
func parquetRow(leaves []parquetLeaf, row parquet.Row) Row {
	cells := make([][]parquet.Value, len(leaves))
	for _, v := range row {
		if c := v.Column(); c >= 0 && c < len(cells) {
			cells[c] = append(cells[c], v)
		}
	}

	out := make(Row, len(leaves))
	for i, leaf := range leaves {
		values := cells[i]
		typ := leaf.node.Type()
		if !leaf.repeated {
			if len(values) == 0 {
				out[leaf.name] = nil
				continue
			}
			out[leaf.name] = parquetValue(values[0], typ)
			continue
		}

		list := make([]any, 0, len(values))
		for _, v := range values {
			if v.IsNull() {
				continue
			}
			list = append(list, parquetValue(v, typ))
		}
		if len(list) == 0 && len(values) <= 1 {
			out[leaf.name] = nil
			continue
		}
		out[leaf.name] = compactJSON(list)
	}
	return out
}

// parquetValue converts a leaf value using its logical type.
func parquetValue(v parquet.Value, typ parquet.Type) any {
	if v.IsNull() {
		return nil
	}
	lt := typ.LogicalType()

	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()

	case parquet.Int32:
		switch {
		case lt != nil && lt.Date != nil:
			return formatDate(v.Int32())
		case lt != nil && lt.Decimal != nil:
			return decimalString(big.NewInt(int64(v.Int32())), lt.Decimal.Scale)
		case lt != nil && lt.Time != nil:
			return (time.Duration(v.Int32()) * time.Millisecond).String()
		case lt != nil && lt.Integer != nil && !lt.Integer.IsSigned:
			return uint64(uint32(v.Int32()))
		}
		return int64(v.Int32())

	case parquet.Int64:
		switch {
		case lt != nil && lt.Timestamp != nil:
			return formatTime(timestampTime(v.Int64(), lt.Timestamp.Unit))
		case lt != nil && lt.Decimal != nil:
			return decimalString(big.NewInt(v.Int64()), lt.Decimal.Scale)
		case lt != nil && lt.Time != nil:
			return timeOfDay(v.Int64(), lt.Time.Unit)
		case lt != nil && lt.Integer != nil && !lt.Integer.IsSigned:
			return uint64(v.Int64())
		}
		return v.Int64()

	case parquet.Int96:
		return formatTime(int96Time(v.Int96()))

	case parquet.Float:
		return displayFloat(float64(v.Float()))

	case parquet.Double:
		return displayFloat(v.Double())

	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := v.ByteArray()
		if lt != nil {
			switch {
			case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil:
				return string(b)
			case lt.Decimal != nil:
				return decimalString(signedBigInt(b), lt.Decimal.Scale)
			case lt.UUID != nil:
				if id, err := uuid.FromBytes(b); err == nil {
					return id.String()
				}
			}
		}
		return binarySnippet(b)
	}
	return v.String()
}

func timestampTime(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(n)
	case unit.Micros != nil:
		return time.UnixMicro(n)
	}
	return time.Unix(0, n)
}

func timeOfDay(n int64, unit format.TimeUnit) string {
	switch {
	case unit.Millis != nil:
		return (time.Duration(n) * time.Millisecond).String()
	case unit.Micros != nil:
		return (time.Duration(n) * time.Microsecond).String()
	}
	return time.Duration(n).String()
}

// int96Time decodes the legacy Impala timestamp: nanoseconds within the day
// in the low 8 bytes and the Julian day in the high 4.
func int96Time(v deprecated.Int96) time.Time {
	nanos := int64(uint64(v[1])<<32 | uint64(v[0]))
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos)
}
