package deltaview

import (
	"bytes"
	"strings"
)

// extensionFormats maps lowercase extensions to table formats.
var extensionFormats = map[string]FormatTag{
	"csv":     FormatCSV,
	"tsv":     FormatCSV,
	"parquet": FormatParquet,
	"pq":      FormatParquet,
	"avro":    FormatAvro,
	"json":    FormatJSON,
	"xml":     FormatXML,
}

// textExtensions are shown as plain text.
var textExtensions = map[string]struct{}{
	"txt": {}, "log": {}, "md": {}, "py": {}, "yaml": {}, "yml": {},
	"toml": {}, "ini": {}, "cfg": {}, "conf": {}, "sh": {}, "go": {},
	"java": {}, "js": {}, "ts": {}, "sql": {}, "html": {}, "css": {},
	"rst": {}, "properties": {}, "env": {}, "ndjson": {}, "jsonl": {},
}

// Magic prefixes recognised by Sniff.
var (
	parquetMagic = []byte("PAR1")
	avroMagic    = []byte("Obj\x01")
)

// Classify maps a key to a format tag by its extension. A trailing
// compression suffix is ignored. Unknown or missing extensions are binary.
// Delta is never chosen here; tables are previewed with an explicit hint.
func Classify(key string) FormatTag {
	ext := extension(stripCompression(key))
	if f, ok := extensionFormats[ext]; ok {
		return f
	}
	if _, ok := textExtensions[ext]; ok {
		return FormatText
	}
	return FormatBinary
}

// Sniff identifies self-describing binary formats by their leading bytes.
func Sniff(prefix []byte) FormatTag {
	switch {
	case bytes.HasPrefix(prefix, parquetMagic):
		return FormatParquet
	case bytes.HasPrefix(prefix, avroMagic):
		return FormatAvro
	}
	return FormatBinary
}

// IsDataFile reports whether a file name classifies as a table format.
func IsDataFile(name string) bool {
	switch Classify(name) {
	case FormatCSV, FormatParquet, FormatAvro, FormatJSON, FormatXML:
		return true
	}
	return false
}

// extension returns the lowercase text after the last dot of the final
// path segment, or "" when there is none.
func extension(key string) string {
	name := key[strings.LastIndexByte(key, '/')+1:]
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// csvDelimiter returns the field separator implied by the key.
func csvDelimiter(key string) rune {
	if extension(stripCompression(key)) == "tsv" {
		return '\t'
	}
	return ','
}
