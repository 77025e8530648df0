package deltaview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
)

// deltaLogDir is the transaction log folder of a Delta table.
const deltaLogDir = "_delta_log"

// maxDeltaReaderVersion is the newest reader protocol version understood.
const maxDeltaReaderVersion = 3

// supportedReaderFeatures lists table features that do not change how data
// files are read.
var supportedReaderFeatures = map[string]struct{}{
	"timestampNtz":        {},
	"vacuumProtocolCheck": {},
	"v2Checkpoint":        {},
}

var (
	commitPattern     = regexp.MustCompile(`^(\d{20})\.json$`)
	checkpointPattern = regexp.MustCompile(`^(\d{20})\.checkpoint(?:\.(\d{10})\.(\d{10}))?\.parquet$`)
)

// -----------------------------------------------------------------------------
// Log actions
// -----------------------------------------------------------------------------

// deltaAction is one line of a commit file. Exactly one field is set;
// other action kinds are ignored.
type deltaAction struct {
	Add      *deltaAdd      `json:"add"`
	Remove   *deltaRemove   `json:"remove"`
	MetaData *deltaMetaData `json:"metaData"`
	Protocol *deltaProtocol `json:"protocol"`
}

type deltaAdd struct {
	Path            string             `json:"path"`
	PartitionValues map[string]*string `json:"partitionValues"`
	Size            int64              `json:"size"`
	Stats           string             `json:"stats"`
	DeletionVector  map[string]any     `json:"deletionVector"`
}

type deltaRemove struct {
	Path string `json:"path"`
}

type deltaMetaData struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
}

type deltaProtocol struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	ReaderFeatures   []string `json:"readerFeatures"`
}

// numRecords returns the record count from the add's stats, if present.
func (a *deltaAdd) numRecords() (int64, bool) {
	if a.Stats == "" {
		return 0, false
	}
	n := json.Get([]byte(a.Stats), "numRecords")
	if n.ValueType() != jsoniter.NumberValue {
		return 0, false
	}
	return n.ToInt64(), true
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// deltaSnapshot is the latest table state reconstructed from the log.
type deltaSnapshot struct {
	version  int64
	files    []*deltaAdd
	metadata *deltaMetaData
	protocol *deltaProtocol
}

type checkpointFile struct {
	version int64
	parts   int
	keys    map[int]string
}

// deltaLog indexes the commit and checkpoint files of a table.
type deltaLog struct {
	commits     map[int64]string
	checkpoints map[int64]*checkpointFile
	latest      int64
}

// listDeltaLog lists table/_delta_log and indexes its entries.
func listDeltaLog(ctx context.Context, src Source, table string) (*deltaLog, error) {
	prefix := path.Join(table, deltaLogDir) + "/"
	log := &deltaLog{
		commits:     make(map[int64]string),
		checkpoints: make(map[int64]*checkpointFile),
		latest:      -1,
	}

	token := ""
	for {
		page, err := src.List(ctx, prefix, ListOptions{ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			log.index(obj.Key, strings.TrimPrefix(obj.Key, prefix))
		}
		if !page.HasMore() {
			break
		}
		token = page.NextToken
	}

	if len(log.commits) == 0 && len(log.checkpoints) == 0 {
		return nil, fmt.Errorf("%w under %q", ErrNoDeltaLog, prefix)
	}
	return log, nil
}

func (l *deltaLog) index(key, name string) {
	if m := commitPattern.FindStringSubmatch(name); m != nil {
		v, _ := strconv.ParseInt(m[1], 10, 64)
		l.commits[v] = key
		l.latest = max(l.latest, v)
		return
	}
	m := checkpointPattern.FindStringSubmatch(name)
	if m == nil {
		return
	}
	v, _ := strconv.ParseInt(m[1], 10, 64)
	part, parts := 1, 1
	if m[2] != "" {
		part, _ = strconv.Atoi(m[2])
		parts, _ = strconv.Atoi(m[3])
	}
	cp, ok := l.checkpoints[v]
	if !ok || cp.parts != parts {
		cp = &checkpointFile{version: v, parts: parts, keys: make(map[int]string)}
		l.checkpoints[v] = cp
	}
	cp.keys[part] = key
	l.latest = max(l.latest, v)
}

// newestCheckpoint returns the newest checkpoint with every part present.
func (l *deltaLog) newestCheckpoint() *checkpointFile {
	var best *checkpointFile
	for _, cp := range l.checkpoints {
		if len(cp.keys) != cp.parts {
			continue
		}
		if best == nil || cp.version > best.version {
			best = cp
		}
	}
	return best
}

// replay reconstructs the latest snapshot: the newest complete checkpoint
// followed by every later commit, in version order.
func (l *deltaLog) replay(ctx context.Context, src Source, parseCap int64) (*deltaSnapshot, error) {
	st := &replayState{live: make(map[string]*deltaAdd)}
	next := int64(0)

	if cp := l.newestCheckpoint(); cp != nil {
		for part := 1; part <= cp.parts; part++ {
			if err := st.applyCheckpoint(ctx, src, cp.keys[part]); err != nil {
				return nil, fmt.Errorf("checkpoint %d: %w", cp.version, err)
			}
		}
		st.version = cp.version
		next = cp.version + 1
	}

	for v := next; v <= l.latest; v++ {
		key, ok := l.commits[v]
		if !ok {
			return nil, fmt.Errorf("missing commit %d", v)
		}
		actions, err := readCommit(ctx, src, key, parseCap)
		if err != nil {
			return nil, fmt.Errorf("commit %d: %w", v, err)
		}
		for _, a := range actions {
			st.apply(a)
		}
		st.version = v
	}

	if st.metadata == nil {
		return nil, errors.New("log has no metaData action")
	}
	return st.snapshot(), nil
}

func readCommit(ctx context.Context, src Source, key string, parseCap int64) ([]deltaAction, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return decodeJSONLines[deltaAction](io.LimitReader(rc, parseCap))
}

// replayState reconciles add and remove actions into the live file set.
type replayState struct {
	version  int64
	live     map[string]*deltaAdd
	metadata *deltaMetaData
	protocol *deltaProtocol
}

func (s *replayState) apply(a deltaAction) {
	switch {
	case a.Add != nil:
		s.live[a.Add.Path] = a.Add
	case a.Remove != nil:
		delete(s.live, a.Remove.Path)
	case a.MetaData != nil:
		s.metadata = a.MetaData
	case a.Protocol != nil:
		s.protocol = a.Protocol
	}
}

func (s *replayState) snapshot() *deltaSnapshot {
	files := make([]*deltaAdd, 0, len(s.live))
	for _, f := range s.live {
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b *deltaAdd) int { return strings.Compare(a.Path, b.Path) })
	return &deltaSnapshot{
		version:  s.version,
		files:    files,
		metadata: s.metadata,
		protocol: s.protocol,
	}
}

// -----------------------------------------------------------------------------
// Checkpoints
// -----------------------------------------------------------------------------

// checkpointColumns locates the checkpoint leaf columns replay needs.
// Lists and maps are matched by prefix so any writer's wrapper names work.
type checkpointColumns struct {
	addPath        int
	addSize        int
	addStats       int
	addDV          int
	addPartKeys    int
	addPartValues  int
	removePath     int
	metaID         int
	metaName       int
	metaDesc       int
	metaSchema     int
	metaPartCols   int
	metaConfKeys   int
	metaConfValues int
	protoReader    int
	protoFeatures  int
}

func resolveCheckpointColumns(leaves []parquetLeaf) checkpointColumns {
	find := func(want ...string) int {
		for i, leaf := range leaves {
			if len(leaf.path) < len(want) || !slices.Equal(leaf.path[:len(want)], want) {
				continue
			}
			return i
		}
		return -1
	}
	findLast := func(prefix []string, last string) int {
		for i, leaf := range leaves {
			p := leaf.path
			if len(p) > len(prefix) && slices.Equal(p[:len(prefix)], prefix) && p[len(p)-1] == last {
				return i
			}
		}
		return -1
	}
	return checkpointColumns{
		addPath:        find("add", "path"),
		addSize:        find("add", "size"),
		addStats:       find("add", "stats"),
		addDV:          find("add", "deletionVector"),
		addPartKeys:    findLast([]string{"add", "partitionValues"}, "key"),
		addPartValues:  findLast([]string{"add", "partitionValues"}, "value"),
		removePath:     find("remove", "path"),
		metaID:         find("metaData", "id"),
		metaName:       find("metaData", "name"),
		metaDesc:       find("metaData", "description"),
		metaSchema:     find("metaData", "schemaString"),
		metaPartCols:   find("metaData", "partitionColumns"),
		metaConfKeys:   findLast([]string{"metaData", "configuration"}, "key"),
		metaConfValues: findLast([]string{"metaData", "configuration"}, "value"),
		protoReader:    find("protocol", "minReaderVersion"),
		protoFeatures:  find("protocol", "readerFeatures"),
	}
}

// applyCheckpoint replays every action row of one checkpoint part.
func (s *replayState) applyCheckpoint(ctx context.Context, src Source, key string) error {
	ra, err := src.ReaderAt(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = ra.Close() }()

	file, err := parquet.OpenFile(ra, ra.Size())
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	leaves := parquetLeaves(file.Schema())
	cols := resolveCheckpointColumns(leaves)

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	rows := make([]parquet.Row, parquetBatchSize)
	for {
		n, err := reader.ReadRows(rows)
		for i := 0; i < n; i++ {
			if a, ok := checkpointAction(cols, groupByColumn(len(leaves), rows[i])); ok {
				s.apply(a)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func groupByColumn(n int, row parquet.Row) [][]parquet.Value {
	cells := make([][]parquet.Value, n)
	for _, v := range row {
		if c := v.Column(); c >= 0 && c < n {
			cells[c] = append(cells[c], v)
		}
	}
	return cells
}

// checkpointAction rebuilds the single action held by a checkpoint row.
func checkpointAction(c checkpointColumns, cells [][]parquet.Value) (deltaAction, bool) {
	str := func(col int) (string, bool) {
		if col < 0 || len(cells[col]) == 0 || cells[col][0].IsNull() {
			return "", false
		}
		return string(cells[col][0].ByteArray()), true
	}
	strs := func(col int) []string {
		if col < 0 {
			return nil
		}
		var out []string
		for _, v := range cells[col] {
			if !v.IsNull() {
				out = append(out, string(v.ByteArray()))
			}
		}
		return out
	}
	present := func(col int) bool {
		if col < 0 {
			return false
		}
		for _, v := range cells[col] {
			if !v.IsNull() {
				return true
			}
		}
		return false
	}

	if p, ok := str(c.addPath); ok {
		add := &deltaAdd{Path: p, PartitionValues: make(map[string]*string)}
		if c.addSize >= 0 && len(cells[c.addSize]) > 0 && !cells[c.addSize][0].IsNull() {
			add.Size = cells[c.addSize][0].Int64()
		}
		add.Stats, _ = str(c.addStats)
		if present(c.addDV) {
			add.DeletionVector = map[string]any{}
		}
		if c.addPartKeys >= 0 && c.addPartValues >= 0 {
			keys, values := cells[c.addPartKeys], cells[c.addPartValues]
			for i, k := range keys {
				if k.IsNull() {
					continue
				}
				var val *string
				if i < len(values) && !values[i].IsNull() {
					s := string(values[i].ByteArray())
					val = &s
				}
				add.PartitionValues[string(k.ByteArray())] = val
			}
		}
		return deltaAction{Add: add}, true
	}
	if p, ok := str(c.removePath); ok {
		return deltaAction{Remove: &deltaRemove{Path: p}}, true
	}
	if schema, ok := str(c.metaSchema); ok {
		md := &deltaMetaData{SchemaString: schema, PartitionColumns: strs(c.metaPartCols)}
		md.ID, _ = str(c.metaID)
		md.Name, _ = str(c.metaName)
		md.Description, _ = str(c.metaDesc)
		confKeys, confValues := strs(c.metaConfKeys), strs(c.metaConfValues)
		if len(confKeys) > 0 {
			md.Configuration = make(map[string]string, len(confKeys))
			for i, k := range confKeys {
				if i < len(confValues) {
					md.Configuration[k] = confValues[i]
				}
			}
		}
		return deltaAction{MetaData: md}, true
	}
	if c.protoReader >= 0 && len(cells[c.protoReader]) > 0 && !cells[c.protoReader][0].IsNull() {
		return deltaAction{Protocol: &deltaProtocol{
			MinReaderVersion: int(cells[c.protoReader][0].Int32()),
			ReaderFeatures:   strs(c.protoFeatures),
		}}, true
	}
	return deltaAction{}, false
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// checkReadable rejects tables whose data files cannot be read as plain
// Parquet.
func (s *deltaSnapshot) checkReadable() error {
	if p := s.protocol; p != nil {
		if p.MinReaderVersion > maxDeltaReaderVersion {
			return fmt.Errorf("unsupported reader version %d", p.MinReaderVersion)
		}
		for _, f := range p.ReaderFeatures {
			if _, ok := supportedReaderFeatures[f]; !ok {
				return fmt.Errorf("unsupported reader feature %q", f)
			}
		}
	}
	switch mode := s.metadata.Configuration["delta.columnMapping.mode"]; mode {
	case "", "none":
	default:
		return fmt.Errorf("unsupported column mapping mode %q", mode)
	}
	for _, f := range s.files {
		if f.DeletionVector != nil {
			return fmt.Errorf("unsupported deletion vector on %s", f.Path)
		}
		if strings.Contains(f.Path, "://") {
			return fmt.Errorf("unsupported absolute file path %s", f.Path)
		}
	}
	return nil
}

// totalRows sums add stats when every live file has them.
func (s *deltaSnapshot) totalRows() (int64, bool) {
	var total int64
	for _, f := range s.files {
		n, ok := f.numRecords()
		if !ok {
			return 0, false
		}
		total += n
	}
	return total, true
}

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

type deltaStructType struct {
	Type      string              `json:"type"`
	Fields    []deltaStructField  `json:"fields"`
	KeyType   jsoniter.RawMessage `json:"keyType"`
	ValueType jsoniter.RawMessage `json:"valueType"`
}

type deltaStructField struct {
	Name string              `json:"name"`
	Type jsoniter.RawMessage `json:"type"`
}

// schemaColumns returns the display columns of a Delta schema, flattening
// nested structs and maps into dotted names the way data file leaves are
// named. A map m contributes m.key and m.value.
func schemaColumns(schemaString string) []string {
	var root deltaStructType
	if err := json.UnmarshalFromString(schemaString, &root); err != nil {
		return nil
	}
	var out []string
	var walk func(name string, typ jsoniter.RawMessage)
	walk = func(name string, typ jsoniter.RawMessage) {
		var nested deltaStructType
		if json.Unmarshal(typ, &nested) == nil {
			switch nested.Type {
			case "struct":
				for _, f := range nested.Fields {
					walk(name+"."+f.Name, f.Type)
				}
				return
			case "map":
				walk(name+".key", nested.KeyType)
				walk(name+".value", nested.ValueType)
				return
			}
		}
		out = append(out, name)
	}
	for _, f := range root.Fields {
		walk(f.Name, f.Type)
	}
	return out
}

// -----------------------------------------------------------------------------
// Reading
// -----------------------------------------------------------------------------

// readDelta replays an indexed log and reads at most limit rows from the
// table's live files in path order.
func readDelta(ctx context.Context, src Source, table string, log *deltaLog, limits Limits) (*PreviewRecord, error) {
	snap, err := log.replay(ctx, src, limits.ParseCap)
	if err != nil {
		return nil, err
	}
	if err := snap.checkReadable(); err != nil {
		return nil, err
	}

	b := newRecordBuilder(FormatDelta)
	for _, col := range schemaColumns(snap.metadata.SchemaString) {
		b.column(col)
	}

	truncated := false
	for i, f := range snap.files {
		if b.len() == limits.RowLimit {
			truncated = slices.ContainsFunc(snap.files[i:], mayHaveRows)
			break
		}
		part, err := readDeltaFile(ctx, src, table, f, limits.RowLimit-b.len())
		if err != nil {
			return nil, err
		}
		order := append(slices.Clone(part.Columns), snap.metadata.PartitionColumns...)
		for _, row := range part.Rows {
			for _, col := range snap.metadata.PartitionColumns {
				if v := f.PartitionValues[col]; v != nil {
					row[col] = *v
				} else {
					row[col] = nil
				}
			}
			b.add(row, order)
		}
		if part.Truncated {
			truncated = true
			break
		}
	}

	rec := b.finish(truncated)
	if total, ok := snap.totalRows(); ok {
		rec.TotalRowsEstimate = &total
	}
	rec.Schema = string(indentJSON([]byte(snap.metadata.SchemaString)))
	rec.Delta = &DeltaMetadata{
		Version:          snap.version,
		NumFiles:         len(snap.files),
		PartitionColumns: nonNil(snap.metadata.PartitionColumns),
		Name:             snap.metadata.Name,
		Description:      snap.metadata.Description,
	}
	return rec, nil
}

func mayHaveRows(f *deltaAdd) bool {
	n, ok := f.numRecords()
	return !ok || n > 0
}

func readDeltaFile(ctx context.Context, src Source, table string, f *deltaAdd, limit int) (*PreviewRecord, error) {
	rel, err := url.PathUnescape(f.Path)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", f.Path, err)
	}
	key := path.Join(table, rel)
	ra, err := src.ReaderAt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", key, err)
	}
	defer func() { _ = ra.Close() }()

	rec, err := readParquet(ra, ra.Size(), limit)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", key, err)
	}
	return rec, nil
}
