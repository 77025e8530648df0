package deltaview

import (
	"bufio"
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// json decodes numbers as json.Number so integers wider than 2^53 survive
// into previews unchanged. Map keys are sorted on output.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// JSON Lines
// -----------------------------------------------------------------------------

// decodeJSONLines decodes one value per non-empty line into a new T.
func decodeJSONLines[T any](r io.Reader) ([]T, error) {
	var out []T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Pretty printing
// -----------------------------------------------------------------------------

// indentJSON pretty-prints a JSON document, keeping its key order.
// Input that is not valid JSON is returned unchanged.
func indentJSON(data []byte) []byte {
	var buf bytes.Buffer
	if err := stdjson.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return data
	}
	return buf.Bytes()
}

// compactRaw strips insignificant whitespace from a JSON value without
// reordering it.
func compactRaw(data []byte) string {
	var buf bytes.Buffer
	if err := stdjson.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// compactJSON renders v as single-line JSON.
func compactJSON(v any) string {
	s, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
