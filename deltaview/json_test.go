package deltaview

import (
	stdjson "encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSON_ArrayOfObjects(t *testing.T) {
	rec, err := normalizeJSON([]byte(`[{"x":1},{"x":2,"y":3}]`), 10)
	require.NoError(t, err)

	want := &PreviewRecord{
		Format:  FormatJSON,
		Columns: []string{"x", "y"},
		Rows: []Row{
			{"x": stdjson.Number("1")},
			{"x": stdjson.Number("2"), "y": stdjson.Number("3")},
		},
		RowsConsidered: 2,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("normalizeJSON() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeJSON_KeyOrderIsFirstSeen(t *testing.T) {
	rec, err := normalizeJSON([]byte(`[{"b":1,"a":2},{"c":3,"a":4}]`), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, rec.Columns)
}

func TestNormalizeJSON_NestedAndScalarValues(t *testing.T) {
	rec, err := normalizeJSON([]byte(`[{"n":null,"t":true,"s":"x","o":{"z":1,"a":[1,2]},"big":12345678901234567890}]`), 10)
	require.NoError(t, err)
	row := rec.Rows[0]
	assert.Nil(t, row["n"])
	assert.Equal(t, true, row["t"])
	assert.Equal(t, "x", row["s"])
	assert.Equal(t, `{"z":1,"a":[1,2]}`, row["o"])
	assert.Equal(t, stdjson.Number("12345678901234567890"), row["big"])
}

func TestNormalizeJSON_Truncation(t *testing.T) {
	rec, err := normalizeJSON([]byte(`[{"i":0},{"i":1},{"i":2},{"late":true}]`), 2)
	require.NoError(t, err)
	assert.Len(t, rec.Rows, 2)
	assert.True(t, rec.Truncated)
	assert.Equal(t, []string{"i"}, rec.Columns, "columns come from sampled rows only")

	rec, err = normalizeJSON([]byte(`[{"i":0},{"i":1}]`), 2)
	require.NoError(t, err)
	assert.False(t, rec.Truncated)
}

func TestNormalizeJSON_BareObject(t *testing.T) {
	rec, err := normalizeJSON([]byte(`{"x":1,"s":"str","o":{"k":[true]},"n":null}`), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"key", "value"}, rec.Columns)
	want := []Row{
		{"key": "x", "value": "1"},
		{"key": "s", "value": "str"},
		{"key": "o", "value": `{"k":[true]}`},
		{"key": "n", "value": "null"},
	}
	if diff := cmp.Diff(want, rec.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, rec.Truncated)
}

func TestNormalizeJSON_NestedKeepsDocumentOrder(t *testing.T) {
	rec, err := normalizeJSON([]byte(`{"m": {"z": 1, "y": [ {"b": 2, "a": 1} ]}}`), 10)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"y":[{"b":2,"a":1}]}`, rec.Rows[0]["value"])
}

func TestNormalizeJSON_BareObjectLimit(t *testing.T) {
	rec, err := normalizeJSON([]byte(`{"a":1,"b":2,"c":3}`), 2)
	require.NoError(t, err)
	assert.Len(t, rec.Rows, 2)
	assert.True(t, rec.Truncated)
}

func TestNormalizeJSON_NotTabular(t *testing.T) {
	for _, doc := range []string{`42`, `"s"`, `[1,2]`, `[{"a":1},2]`, `[]`, `null`} {
		_, err := normalizeJSON([]byte(doc), 10)
		var pf *ParseFailure
		require.True(t, errors.As(err, &pf), "doc %s: got %v", doc, err)
		assert.Equal(t, "not tabular", pf.Reason)
		assert.NotNil(t, pf.Rendered)
	}
}

func TestNormalizeJSON_NotTabularIsPrettyPrinted(t *testing.T) {
	_, err := normalizeJSON([]byte(`[1,[2,3]]`), 10)
	var pf *ParseFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "[\n  1,\n  [\n    2,\n    3\n  ]\n]", string(pf.Rendered))
}

func TestNormalizeJSON_Malformed(t *testing.T) {
	for _, doc := range []string{`{"a":`, `[{"a":1}`, `{"a":1} {"b":2}`, ``, `not json`} {
		_, err := normalizeJSON([]byte(doc), 10)
		var pf *ParseFailure
		require.True(t, errors.As(err, &pf), "doc %q: got %v", doc, err)
		assert.Equal(t, "malformed JSON", pf.Reason, "doc %q", doc)
		assert.Nil(t, pf.Rendered)
		assert.True(t, strings.HasPrefix(pf.Error(), "json: malformed JSON"))
	}
}
