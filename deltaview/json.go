package deltaview

import (
	stdjson "encoding/json"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Columns of the key/value table produced from a bare JSON object.
const (
	keyColumn   = "key"
	valueColumn = "value"
)

var errNotTabular = errors.New("document is not an array of objects or an object")

// normalizeJSON turns a single JSON document into a table.
//
// An array of objects yields one row per object; a bare object yields one
// key/value row per member. Other shapes and malformed input are reported as
// *ParseFailure.
func normalizeJSON(data []byte, limit int) (*PreviewRecord, error) {
	// jsoniter's Valid ignores trailing values.
	if !stdjson.Valid(data) {
		return nil, &ParseFailure{Format: FormatJSON, Reason: "malformed JSON", Err: jsonSyntaxError(data)}
	}

	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	var rec *PreviewRecord
	switch iter.WhatIsNext() {
	case jsoniter.ArrayValue:
		rec = readObjectArray(iter, limit)
	case jsoniter.ObjectValue:
		rec = readMembers(iter, limit)
	}
	if rec == nil || (iter.Error != nil && !errors.Is(iter.Error, io.EOF)) {
		return nil, &ParseFailure{
			Format:   FormatJSON,
			Reason:   "not tabular",
			Err:      errNotTabular,
			Rendered: indentJSON(data),
		}
	}
	return rec, nil
}

// readObjectArray reads an array whose elements are all objects.
// It returns nil for an empty array or any non-object element.
func readObjectArray(iter *jsoniter.Iterator, limit int) *PreviewRecord {
	b := newRecordBuilder(FormatJSON)
	n := 0
	for iter.ReadArray() {
		if iter.WhatIsNext() != jsoniter.ObjectValue {
			return nil
		}
		if n >= limit {
			iter.Skip()
			n++
			continue
		}
		row := Row{}
		var order []string
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			if _, dup := row[key]; !dup {
				order = append(order, key)
			}
			row[key] = readCell(it)
			return true
		})
		b.add(row, order)
		n++
	}
	if n == 0 {
		return nil
	}
	return b.finish(n > limit)
}

// readMembers reads a bare object as key/value rows in document order.
func readMembers(iter *jsoniter.Iterator, limit int) *PreviewRecord {
	b := newRecordBuilder(FormatJSON)
	b.column(keyColumn)
	b.column(valueColumn)
	n := 0
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		if n < limit {
			b.add(Row{keyColumn: key, valueColumn: displayString(readCell(it))}, nil)
		} else {
			it.Skip()
		}
		n++
		return true
	})
	return b.finish(n > limit)
}

// readCell reads the next value as a cell. Nested objects and arrays
// become compact JSON text in document key order.
func readCell(it *jsoniter.Iterator) any {
	switch it.WhatIsNext() {
	case jsoniter.ObjectValue, jsoniter.ArrayValue:
		return compactRaw(it.SkipAndReturnBytes())
	}
	return displayValue(it.Read())
}

// jsonSyntaxError describes why data is not a single JSON document.
func jsonSyntaxError(data []byte) error {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)
	iter.Skip()
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return iter.Error
	}
	return errors.New("unexpected data after top-level value")
}
