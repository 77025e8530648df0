// Package deltaview renders bounded previews of objects held in S3-compatible
// storage.
//
// A preview is either a PreviewRecord (ordered columns plus rows) for formats
// that normalize into a table, or a RawPreview (text or hex) for everything
// else. Previews are built per request from a Source and are never cached.
package deltaview

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Object references
// -----------------------------------------------------------------------------

// ObjectRef identifies an object (or, with a trailing slash, a folder prefix)
// within the bucket owned by a Source.
type ObjectRef struct {
	Key string
}

// NewObjectRef joins path segments into an ObjectRef.
// Empty segments are dropped; a trailing empty segment keeps the folder slash.
func NewObjectRef(segments ...string) ObjectRef {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	key := strings.Join(parts, "/")
	if n := len(segments); n > 0 && segments[n-1] == "" && key != "" {
		key += "/"
	}
	return ObjectRef{Key: key}
}

// Segments returns the non-empty path segments of the key.
func (r ObjectRef) Segments() []string {
	var out []string
	for _, s := range strings.Split(r.Key, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Name returns the final segment of the key.
func (r ObjectRef) Name() string {
	segs := r.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the folder prefix containing the key, with a trailing slash,
// or "" at the bucket root.
func (r ObjectRef) Parent() string {
	segs := r.Segments()
	if len(segs) <= 1 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/") + "/"
}

// IsPrefix reports whether the ref names a folder prefix.
func (r ObjectRef) IsPrefix() bool {
	return r.Key == "" || strings.HasSuffix(r.Key, "/")
}

func (r ObjectRef) String() string { return r.Key }

// -----------------------------------------------------------------------------
// Formats
// -----------------------------------------------------------------------------

// FormatTag names the preview strategy for an object.
type FormatTag string

// Format tags. FormatAuto is only meaningful as a hint to Preview.
const (
	FormatAuto    FormatTag = "auto"
	FormatCSV     FormatTag = "csv"
	FormatParquet FormatTag = "parquet"
	FormatAvro    FormatTag = "avro"
	FormatJSON    FormatTag = "json"
	FormatXML     FormatTag = "xml"
	FormatDelta   FormatTag = "delta"
	FormatText    FormatTag = "text"
	FormatBinary  FormatTag = "binary"
)

// ParseFormatTag parses a user-supplied format name. The empty string is auto.
func ParseFormatTag(s string) (FormatTag, error) {
	switch tag := FormatTag(strings.ToLower(strings.TrimSpace(s))); tag {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatCSV, FormatParquet, FormatAvro, FormatJSON,
		FormatXML, FormatDelta, FormatText, FormatBinary:
		return tag, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// -----------------------------------------------------------------------------
// Limits
// -----------------------------------------------------------------------------

// Default preview bounds.
const (
	DefaultRowLimit = 1000
	DefaultByteCap  = 64 << 10
	DefaultParseCap = 64 << 20
)

// Limits bounds the work done for a single preview.
type Limits struct {
	// RowLimit is the maximum number of rows in a PreviewRecord.
	RowLimit int

	// ByteCap is the maximum number of bytes shown by a RawPreview.
	ByteCap int

	// ParseCap is the largest text document (JSON, XML) parsed in full.
	// Larger documents fall back to a raw view of the first ByteCap bytes.
	ParseCap int64
}

// DefaultLimits returns the default preview bounds.
func DefaultLimits() Limits {
	return Limits{
		RowLimit: DefaultRowLimit,
		ByteCap:  DefaultByteCap,
		ParseCap: DefaultParseCap,
	}
}

// Validate checks that every bound is positive.
func (l Limits) Validate() error {
	switch {
	case l.RowLimit <= 0:
		return fmt.Errorf("%w: row limit must be positive, got %d", ErrInvalidLimits, l.RowLimit)
	case l.ByteCap <= 0:
		return fmt.Errorf("%w: byte cap must be positive, got %d", ErrInvalidLimits, l.ByteCap)
	case l.ParseCap <= 0:
		return fmt.Errorf("%w: parse cap must be positive, got %d", ErrInvalidLimits, l.ParseCap)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Source
// -----------------------------------------------------------------------------

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListOptions controls a single List call.
type ListOptions struct {
	// Delimiter groups keys sharing a prefix up to the delimiter into
	// ListPage.Prefixes. Empty lists every key recursively.
	Delimiter string

	// Limit caps the number of entries (objects plus prefixes) per page.
	// Zero uses the source default.
	Limit int

	// ContinuationToken resumes a previous listing.
	ContinuationToken string
}

// ListPage is one page of a listing.
type ListPage struct {
	Objects   []ObjectInfo
	Prefixes  []string
	NextToken string
}

// HasMore reports whether another page is available.
func (p ListPage) HasMore() bool { return p.NextToken != "" }

// ReaderAt provides random access to an object.
type ReaderAt interface {
	io.ReaderAt
	io.Closer

	// Size returns the total size of the object in bytes.
	Size() int64
}

// Source is the read-only byte store previews are built from.
//
// Implementations map missing objects to ErrNotFound and malformed keys to
// ErrInvalidKey; any other error is passed through to the caller unchanged.
type Source interface {
	// Stat returns metadata about an object.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Open returns a reader for the entire object. The caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// ReadRange reads up to length bytes starting at offset. A range extending
	// past EOF returns the available bytes.
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)

	// ReaderAt returns a random-access reader. The caller must close it.
	ReaderAt(ctx context.Context, key string) (ReaderAt, error)

	// List returns one page of objects under prefix.
	List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrInvalidKey indicates an empty, escaping, or otherwise unusable key.
	ErrInvalidKey = errInvalidKey{}

	// ErrInvalidLimits indicates a non-positive preview bound.
	ErrInvalidLimits = errInvalidLimits{}

	// ErrUnknownFormat indicates an unrecognised format hint.
	ErrUnknownFormat = errUnknownFormat{}

	// ErrNoDeltaLog indicates a folder has no _delta_log entries.
	ErrNoDeltaLog = errNoDeltaLog{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errInvalidKey struct{}

func (errInvalidKey) Error() string { return "invalid key" }

type errInvalidLimits struct{}

func (errInvalidLimits) Error() string { return "invalid limits" }

type errUnknownFormat struct{}

func (errUnknownFormat) Error() string { return "unknown format" }

type errNoDeltaLog struct{}

func (errNoDeltaLog) Error() string { return "no delta log" }

// DecodeError reports that a binary or table format could not be decoded.
// It is never degraded to a raw view.
type DecodeError struct {
	Format FormatTag
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode failed: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(format FormatTag, err error) *DecodeError {
	return &DecodeError{Format: format, Reason: err.Error(), Err: err}
}

// ParseFailure reports that a text format could not be normalized into a
// table. Preview recovers from it by rendering a raw text view.
type ParseFailure struct {
	Format FormatTag
	Reason string
	Err    error

	// Rendered, when set, replaces the raw bytes in the text view
	// (for example a pretty-printed document that is not tabular).
	Rendered []byte
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Reason)
}

func (e *ParseFailure) Unwrap() error { return e.Err }
