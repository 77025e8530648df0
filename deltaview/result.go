package deltaview

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Result is the outcome of a preview: *PreviewRecord or *RawPreview.
type Result interface {
	isResult()
}

// Row maps column names to display values. Rows are sparse: a column absent
// from the source record is absent from the map.
type Row map[string]any

// PreviewRecord is a bounded, normalized table.
//
// Columns are distinct and ordered by first appearance; every key of every
// row is one of Columns. len(Rows) == RowsConsidered <= the row limit.
type PreviewRecord struct {
	Format         FormatTag
	Columns        []string
	Rows           []Row
	Truncated      bool
	RowsConsidered int

	// TotalRowsEstimate is set when the total row count is cheaply known.
	TotalRowsEstimate *int64

	// Schema is a human-readable schema, when the format carries one.
	Schema string

	// Delta describes the table snapshot for Delta previews.
	Delta *DeltaMetadata
}

func (*PreviewRecord) isResult() {}

// Value returns the cell at row i, column col.
func (r *PreviewRecord) Value(i int, col string) (any, bool) {
	if i < 0 || i >= len(r.Rows) {
		return nil, false
	}
	v, ok := r.Rows[i][col]
	return v, ok
}

// MarshalJSON renders rows as objects carrying every column, with null for
// cells the source record did not have.
func (r *PreviewRecord) MarshalJSON() ([]byte, error) {
	rows := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		full := make(map[string]any, len(r.Columns))
		for _, col := range r.Columns {
			full[col] = row[col]
		}
		rows[i] = full
	}
	return json.Marshal(struct {
		Kind              string           `json:"kind"`
		Format            FormatTag        `json:"format"`
		Columns           []string         `json:"columns"`
		Rows              []map[string]any `json:"rows"`
		Truncated         bool             `json:"truncated"`
		RowsConsidered    int              `json:"rows_considered"`
		TotalRowsEstimate *int64           `json:"total_rows_estimate,omitempty"`
		Schema            string           `json:"schema,omitempty"`
		Delta             *DeltaMetadata   `json:"delta,omitempty"`
	}{
		Kind:              "table",
		Format:            r.Format,
		Columns:           nonNil(r.Columns),
		Rows:              rows,
		Truncated:         r.Truncated,
		RowsConsidered:    r.RowsConsidered,
		TotalRowsEstimate: r.TotalRowsEstimate,
		Schema:            r.Schema,
		Delta:             r.Delta,
	})
}

// RawMode selects how a RawPreview presents its bytes.
type RawMode string

// Raw preview modes.
const (
	RawText RawMode = "text"
	RawHex  RawMode = "hex"
)

// RawPreview is a bounded text or hex view of an object's leading bytes.
type RawPreview struct {
	Mode      RawMode
	Window    []byte
	Truncated bool

	// Text is the decoded text (RawText) or the hex dump (RawHex).
	Text string

	// Size is the stored object size, or -1 when unknown.
	Size int64

	// Reason records why a raw view was chosen over a table, if it was.
	Reason string
}

func (*RawPreview) isResult() {}

// MarshalJSON omits the window bytes; Text already carries them.
func (p *RawPreview) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind      string  `json:"kind"`
		Mode      RawMode `json:"mode"`
		Text      string  `json:"text"`
		Bytes     int     `json:"bytes"`
		Truncated bool    `json:"truncated"`
		Size      int64   `json:"size"`
		Reason    string  `json:"reason,omitempty"`
	}{
		Kind:      "raw",
		Mode:      p.Mode,
		Text:      p.Text,
		Bytes:     len(p.Window),
		Truncated: p.Truncated,
		Size:      p.Size,
		Reason:    p.Reason,
	})
}

// DeltaMetadata describes the Delta table snapshot a preview was read from.
type DeltaMetadata struct {
	Version          int64    `json:"version"`
	NumFiles         int      `json:"num_files"`
	PartitionColumns []string `json:"partition_columns"`
	Name             string   `json:"name,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// -----------------------------------------------------------------------------
// Record builder
// -----------------------------------------------------------------------------

// recordBuilder accumulates rows while tracking first-seen column order.
type recordBuilder struct {
	rec  *PreviewRecord
	seen map[string]struct{}
}

func newRecordBuilder(format FormatTag) *recordBuilder {
	return &recordBuilder{
		rec:  &PreviewRecord{Format: format, Columns: []string{}, Rows: []Row{}},
		seen: make(map[string]struct{}),
	}
}

// column registers a column name, keeping the first position it was seen at.
func (b *recordBuilder) column(name string) {
	if _, ok := b.seen[name]; ok {
		return
	}
	b.seen[name] = struct{}{}
	b.rec.Columns = append(b.rec.Columns, name)
}

// add appends a row, registering any columns not yet seen.
func (b *recordBuilder) add(row Row, order []string) {
	for _, k := range order {
		b.column(k)
	}
	b.rec.Rows = append(b.rec.Rows, row)
}

func (b *recordBuilder) len() int { return len(b.rec.Rows) }

func (b *recordBuilder) finish(truncated bool) *PreviewRecord {
	b.rec.Truncated = truncated
	b.rec.RowsConsidered = len(b.rec.Rows)
	return b.rec
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
