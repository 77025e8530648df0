package deltaview

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

const utf8BOM = "\ufeff"

// normalizeCSV reads a header row and at most limit data rows from r.
//
// Short rows leave their trailing columns nil; extra fields are dropped.
// Row limit+1 is read only to decide truncation.
func normalizeCSV(r io.Reader, delimiter rune, limit int) (*PreviewRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	b := newRecordBuilder(FormatCSV)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return b.finish(false), nil
	}
	if err != nil {
		return nil, csvFailure("unreadable header", err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	columns := distinctColumns(header)
	for _, c := range columns {
		b.column(c)
	}

	for b.len() < limit {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return b.finish(false), nil
		}
		if err != nil {
			return nil, csvFailure("malformed row", err)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			if i < len(fields) {
				row[c] = fields[i]
			} else {
				row[c] = nil
			}
		}
		b.add(row, nil)
	}

	// Any further record, even a malformed one, means rows were left unread.
	_, err = cr.Read()
	return b.finish(!errors.Is(err, io.EOF)), nil
}

// csvFailure reports syntax errors as *ParseFailure. Read errors from the
// underlying stream are returned unchanged.
func csvFailure(reason string, err error) error {
	var pe *csv.ParseError
	if !errors.As(err, &pe) {
		return err
	}
	return &ParseFailure{Format: FormatCSV, Reason: reason, Err: err}
}

// distinctColumns keeps header names verbatim, suffixing repeats with _N.
func distinctColumns(header []string) []string {
	seen := make(map[string]struct{}, len(header))
	out := make([]string, len(header))
	for i, name := range header {
		candidate := name
		for n := 1; ; n++ {
			if _, dup := seen[candidate]; !dup {
				break
			}
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}
