package deltaview

import (
	"fmt"
	"io"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

// avroSchemaKey is the container metadata entry holding the writer schema.
const avroSchemaKey = "avro.schema"

// readAvro reads at most limit records from an Avro object container.
//
// Columns follow the writer schema's record fields. A container whose
// schema is not a record yields a single "value" column.
func readAvro(r io.Reader, limit int) (*PreviewRecord, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	rawSchema := dec.Metadata()[avroSchemaKey]
	schema, err := avro.Parse(string(rawSchema))
	if err != nil {
		return nil, fmt.Errorf("parse writer schema: %w", err)
	}

	b := newRecordBuilder(FormatAvro)
	record, isRecord := schema.(*avro.RecordSchema)
	var fields []*avro.Field
	if isRecord {
		fields = record.Fields()
		for _, f := range fields {
			b.column(f.Name())
		}
	} else {
		b.column(valueColumn)
	}

	truncated := false
	for dec.HasNext() {
		if b.len() == limit {
			truncated = true
			break
		}
		if isRecord {
			var m map[string]any
			if err := dec.Decode(&m); err != nil {
				return nil, fmt.Errorf("decode record %d: %w", b.len(), err)
			}
			row := make(Row, len(m))
			for _, f := range fields {
				if v, ok := m[f.Name()]; ok {
					row[f.Name()] = avroValue(f.Type(), v)
				}
			}
			b.add(row, nil)
			continue
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", b.len(), err)
		}
		b.add(Row{valueColumn: avroValue(schema, v)}, nil)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read block: %w", err)
	}

	rec := b.finish(truncated)
	rec.Schema = string(indentJSON(rawSchema))
	return rec, nil
}

// avroValue unwraps a generically decoded union branch before display.
func avroValue(s avro.Schema, v any) any {
	if u, ok := s.(*avro.UnionSchema); ok {
		if m, ok := v.(map[string]any); ok && len(m) == 1 {
			for name, inner := range m {
				if t, _ := u.Types().Get(name); t != nil {
					return avroValue(t, inner)
				}
			}
		}
	}
	return displayValue(v)
}
