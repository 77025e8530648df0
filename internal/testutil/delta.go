package testutil

import (
	"bytes"
	"fmt"
	"path"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// Table builder
// -----------------------------------------------------------------------------

// DeltaTable writes a Delta Lake table folder: data files plus a
// _delta_log of JSON commits and Parquet checkpoints.
type DeltaTable struct {
	t    testing.TB
	fs   afero.Fs
	dir  string
	next int64
}

// NewDeltaTable creates a builder for the table rooted at dir within fs.
func NewDeltaTable(t testing.TB, fs afero.Fs, dir string) *DeltaTable {
	t.Helper()
	require.NoError(t, fs.MkdirAll(path.Join(dir, "_delta_log"), 0o755))
	return &DeltaTable{t: t, fs: fs, dir: dir}
}

// Version returns the version of the last commit, or -1 before any.
func (d *DeltaTable) Version() int64 { return d.next - 1 }

// Commit writes the next commit file, one action per line, and returns its
// version.
func (d *DeltaTable) Commit(actions ...map[string]any) int64 {
	d.t.Helper()
	var buf bytes.Buffer
	for _, a := range actions {
		line, err := json.Marshal(a)
		require.NoError(d.t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	v := d.next
	d.write(path.Join("_delta_log", fmt.Sprintf("%020d.json", v)), buf.Bytes())
	d.next++
	return v
}

// RemoveCommit deletes the commit file for version, as log cleanup does
// once a checkpoint covers it.
func (d *DeltaTable) RemoveCommit(version int64) {
	d.t.Helper()
	require.NoError(d.t, d.fs.Remove(path.Join(d.dir, "_delta_log", fmt.Sprintf("%020d.json", version))))
}

// Checkpoint writes a single-part checkpoint of version holding rows.
func (d *DeltaTable) Checkpoint(version int64, rows []CheckpointRow) {
	d.t.Helper()
	d.write(path.Join("_delta_log", fmt.Sprintf("%020d.checkpoint.parquet", version)), WriteParquet(d.t, rows))
}

// WriteFile writes a data file at name relative to the table root.
func (d *DeltaTable) WriteFile(name string, data []byte) {
	d.t.Helper()
	d.write(name, data)
}

func (d *DeltaTable) write(name string, data []byte) {
	full := path.Join(d.dir, name)
	require.NoError(d.t, d.fs.MkdirAll(path.Dir(full), 0o755))
	require.NoError(d.t, afero.WriteFile(d.fs, full, data, 0o644))
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

// DeltaField is one column of a table schema.
type DeltaField struct {
	Name string
	Type any
}

// DeltaSchema returns a schemaString for a struct of the given fields.
// A field Type is a primitive name ("long", "string") or a nested
// DeltaStruct.
func DeltaSchema(fields ...DeltaField) string {
	b, err := json.Marshal(DeltaStruct(fields...))
	if err != nil {
		panic(err)
	}
	return string(b)
}

// DeltaStruct returns a struct type usable as a nested field type.
func DeltaStruct(fields ...DeltaField) map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{
			"name":     f.Name,
			"type":     f.Type,
			"nullable": true,
			"metadata": map[string]any{},
		})
	}
	return map[string]any{"type": "struct", "fields": out}
}

// DeltaProtocol returns a protocol action.
func DeltaProtocol(minReader int, readerFeatures ...string) map[string]any {
	p := map[string]any{"minReaderVersion": minReader, "minWriterVersion": 2}
	if len(readerFeatures) > 0 {
		p["readerFeatures"] = readerFeatures
	}
	return map[string]any{"protocol": p}
}

// DeltaMetaData returns a metaData action.
func DeltaMetaData(schema string, partitionColumns []string, configuration map[string]string) map[string]any {
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	if configuration == nil {
		configuration = map[string]string{}
	}
	return map[string]any{"metaData": map[string]any{
		"id":               "5f8b3c2e-0d1a-4c6e-9b7a-1f2e3d4c5b6a",
		"name":             "fixture",
		"format":           map[string]any{"provider": "parquet", "options": map[string]any{}},
		"schemaString":     schema,
		"partitionColumns": partitionColumns,
		"configuration":    configuration,
		"createdTime":      1700000000000,
	}}
}

// DeltaAdd returns an add action. A negative numRecords omits stats.
// A nil partition value is written as JSON null.
func DeltaAdd(filePath string, partitionValues map[string]any, numRecords int64) map[string]any {
	if partitionValues == nil {
		partitionValues = map[string]any{}
	}
	add := map[string]any{
		"path":             filePath,
		"partitionValues":  partitionValues,
		"size":             1,
		"modificationTime": 1700000000000,
		"dataChange":       true,
	}
	if numRecords >= 0 {
		add["stats"] = fmt.Sprintf(`{"numRecords":%d}`, numRecords)
	}
	return map[string]any{"add": add}
}

// DeltaRemove returns a remove action.
func DeltaRemove(filePath string) map[string]any {
	return map[string]any{"remove": map[string]any{
		"path":              filePath,
		"deletionTimestamp": 1700000000000,
		"dataChange":        true,
	}}
}

// -----------------------------------------------------------------------------
// Checkpoints
// -----------------------------------------------------------------------------

// CheckpointRow is one action row of a checkpoint file. Exactly one field
// is set.
type CheckpointRow struct {
	Add      *CheckpointAdd      `parquet:"add"`
	Remove   *CheckpointRemove   `parquet:"remove"`
	MetaData *CheckpointMetaData `parquet:"metaData"`
	Protocol *CheckpointProtocol `parquet:"protocol"`
}

// CheckpointAdd is the add struct of a checkpoint row.
type CheckpointAdd struct {
	Path            string            `parquet:"path"`
	PartitionValues map[string]string `parquet:"partitionValues"`
	Size            int64             `parquet:"size"`
	Stats           string            `parquet:"stats"`
}

// CheckpointRemove is the remove struct of a checkpoint row.
type CheckpointRemove struct {
	Path string `parquet:"path"`
}

// CheckpointMetaData is the metaData struct of a checkpoint row.
type CheckpointMetaData struct {
	ID               string            `parquet:"id"`
	Name             string            `parquet:"name"`
	Description      string            `parquet:"description"`
	SchemaString     string            `parquet:"schemaString"`
	PartitionColumns []string          `parquet:"partitionColumns"`
	Configuration    map[string]string `parquet:"configuration"`
}

// CheckpointProtocol is the protocol struct of a checkpoint row.
type CheckpointProtocol struct {
	MinReaderVersion int32    `parquet:"minReaderVersion"`
	MinWriterVersion int32    `parquet:"minWriterVersion"`
	ReaderFeatures   []string `parquet:"readerFeatures"`
}
