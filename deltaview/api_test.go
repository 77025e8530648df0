package deltaview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// ObjectRef
// -----------------------------------------------------------------------------

func TestNewObjectRef(t *testing.T) {
	tests := []struct {
		segments []string
		want     string
	}{
		{[]string{"a", "b", "c.csv"}, "a/b/c.csv"},
		{[]string{"/a/", "b"}, "a/b"},
		{[]string{"a", "", "b"}, "a/b"},
		{[]string{"tables", "t", ""}, "tables/t/"},
		{[]string{""}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewObjectRef(tt.segments...).Key, "segments %q", tt.segments)
	}
}

func TestObjectRef_Accessors(t *testing.T) {
	ref := ObjectRef{Key: "a/b/c.csv"}
	assert.Equal(t, []string{"a", "b", "c.csv"}, ref.Segments())
	assert.Equal(t, "c.csv", ref.Name())
	assert.Equal(t, "a/b/", ref.Parent())
	assert.False(t, ref.IsPrefix())
	assert.Equal(t, "a/b/c.csv", ref.String())

	folder := ObjectRef{Key: "a/b/"}
	assert.True(t, folder.IsPrefix())
	assert.Equal(t, "b", folder.Name())
	assert.Equal(t, "a/", folder.Parent())

	root := ObjectRef{}
	assert.True(t, root.IsPrefix())
	assert.Equal(t, "", root.Name())
	assert.Equal(t, "", root.Parent())
	assert.Equal(t, "", ObjectRef{Key: "top.csv"}.Parent())
}

// -----------------------------------------------------------------------------
// Formats and limits
// -----------------------------------------------------------------------------

func TestParseFormatTag(t *testing.T) {
	for in, want := range map[string]FormatTag{
		"":         FormatAuto,
		"auto":     FormatAuto,
		"CSV":      FormatCSV,
		" parquet": FormatParquet,
		"delta":    FormatDelta,
		"binary":   FormatBinary,
	} {
		got, err := ParseFormatTag(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, err := ParseFormatTag("orc")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLimits_Validate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())

	bad := []Limits{
		{RowLimit: 0, ByteCap: 1, ParseCap: 1},
		{RowLimit: 1, ByteCap: -1, ParseCap: 1},
		{RowLimit: 1, ByteCap: 1, ParseCap: 0},
	}
	for _, l := range bad {
		assert.ErrorIs(t, l.Validate(), ErrInvalidLimits, "limits %+v", l)
	}
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

func TestDecodeError(t *testing.T) {
	cause := errors.New("invalid magic")
	err := error(newDecodeError(FormatParquet, cause))

	assert.Equal(t, "parquet: decode failed: invalid magic", err.Error())
	assert.ErrorIs(t, err, cause)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, FormatParquet, de.Format)
}

func TestParseFailure(t *testing.T) {
	pf := &ParseFailure{Format: FormatXML, Reason: "not tabular"}
	assert.Equal(t, "xml: not tabular", pf.Error())

	cause := errors.New("eof")
	pf = &ParseFailure{Format: FormatCSV, Reason: "malformed row", Err: cause}
	assert.Equal(t, "csv: malformed row: eof", pf.Error())
	assert.ErrorIs(t, pf, cause)
}

func TestSentinels_Distinct(t *testing.T) {
	all := []error{ErrNotFound, ErrInvalidKey, ErrInvalidLimits, ErrUnknownFormat, ErrNoDeltaLog}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
