package deltaview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewRecord_MarshalJSON(t *testing.T) {
	total := int64(10)
	rec := &PreviewRecord{
		Format:            FormatCSV,
		Columns:           []string{"a", "b"},
		Rows:              []Row{{"a": "1"}, {"a": "2", "b": "x"}},
		Truncated:         true,
		RowsConsidered:    2,
		TotalRowsEstimate: &total,
	}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "table",
		"format": "csv",
		"columns": ["a", "b"],
		"rows": [{"a": "1", "b": null}, {"a": "2", "b": "x"}],
		"truncated": true,
		"rows_considered": 2,
		"total_rows_estimate": 10
	}`, string(out))
}

func TestRawPreview_MarshalJSON(t *testing.T) {
	p := RenderFallback([]byte("hello"), 3)
	p.Size = 5
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "raw",
		"mode": "text",
		"text": "hel",
		"bytes": 3,
		"truncated": true,
		"size": 5
	}`, string(out))
}

func TestPreviewRecord_Value(t *testing.T) {
	rec := &PreviewRecord{Columns: []string{"a"}, Rows: []Row{{"a": "1"}}}

	v, ok := rec.Value(0, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = rec.Value(0, "b")
	assert.False(t, ok)
	_, ok = rec.Value(3, "a")
	assert.False(t, ok)
}

func TestRecordBuilder_ColumnOrder(t *testing.T) {
	b := newRecordBuilder(FormatJSON)
	b.column("z")
	b.add(Row{"a": 1, "z": 2}, []string{"a", "z"})
	b.add(Row{"m": 3}, []string{"m"})
	rec := b.finish(false)

	assert.Equal(t, []string{"z", "a", "m"}, rec.Columns)
	assert.Equal(t, 2, rec.RowsConsidered)
	for _, row := range rec.Rows {
		for k := range row {
			assert.Contains(t, rec.Columns, k)
		}
	}
}
