package deltaview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Previewer builds previews from a Source.
//
// A Previewer holds no per-request state and is safe for concurrent use.
type Previewer struct {
	src    Source
	logger *zap.Logger
}

// Option configures a Previewer.
type Option func(*Previewer)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Previewer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPreviewer creates a Previewer reading from src.
func NewPreviewer(src Source, opts ...Option) (*Previewer, error) {
	if src == nil {
		return nil, errors.New("deltaview: source is required")
	}
	p := &Previewer{src: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Source returns the source previews are read from.
func (p *Previewer) Source() Source { return p.src }

// request carries one preview through its handler.
type request struct {
	ref         ObjectRef
	format      FormatTag
	compression Compression
	limits      Limits

	// sniff allows a binary classification to be refined by magic bytes.
	sniff bool
}

// handler produces a preview for one format.
type handler func(ctx context.Context, p *Previewer, req request) (Result, error)

// handlers is the dispatch table. Adding a format means adding a FormatTag
// and an entry here.
var handlers map[FormatTag]handler

func init() {
	handlers = map[FormatTag]handler{
		FormatCSV:     previewCSV,
		FormatJSON:    previewJSON,
		FormatXML:     previewXML,
		FormatParquet: previewParquet,
		FormatAvro:    previewAvro,
		FormatDelta:   previewDelta,
		FormatText:    previewRaw,
		FormatBinary:  previewBinary,
	}
}

// Preview renders ref as a table or a raw view.
//
// hint selects the format; FormatAuto (or "") classifies by extension and,
// for unknown extensions, by magic bytes. FormatDelta treats ref as a table
// folder. Source errors are returned unchanged; Parquet, Avro and Delta
// failures are returned as *DecodeError. Text formats that cannot be
// tabulated degrade to a text RawPreview.
func (p *Previewer) Preview(ctx context.Context, ref ObjectRef, hint FormatTag, limits Limits) (Result, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	req := request{ref: ref, limits: limits, compression: DetectCompression(ref.Key)}
	switch hint {
	case "", FormatAuto:
		req.format = Classify(ref.Key)
		req.sniff = true
	default:
		req.format = hint
	}

	h, ok := handlers[req.format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, hint)
	}
	if req.format != FormatDelta && ref.IsPrefix() {
		return nil, fmt.Errorf("%w: %q is a folder", ErrInvalidKey, ref.Key)
	}

	start := time.Now()
	res, err := h(ctx, p, req)
	fields := []zap.Field{
		zap.String("key", ref.Key),
		zap.String("format", string(req.format)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		p.logger.Debug("preview failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	switch r := res.(type) {
	case *PreviewRecord:
		p.logger.Debug("preview table", append(fields,
			zap.Int("rows", r.RowsConsidered),
			zap.Int("columns", len(r.Columns)),
			zap.Bool("truncated", r.Truncated))...)
	case *RawPreview:
		if r.Reason != "" {
			p.logger.Info("preview degraded to text", append(fields, zap.String("reason", r.Reason))...)
		} else {
			p.logger.Debug("preview raw", append(fields, zap.String("mode", string(r.Mode)))...)
		}
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Fetching
// -----------------------------------------------------------------------------

// open returns the decompressed object stream.
func (p *Previewer) open(ctx context.Context, req request) (io.ReadCloser, error) {
	rc, err := p.src.Open(ctx, req.ref.Key)
	if err != nil {
		return nil, err
	}
	if req.compression == CompressionNone {
		return rc, nil
	}
	src := &sourceReader{ReadCloser: rc}
	dr, err := decompress(req.compression, src)
	if err != nil {
		_ = rc.Close()
		if src.err != nil {
			return nil, src.err
		}
		return nil, newDecodeError(req.format, fmt.Errorf("%s: %w", req.compression, err))
	}
	return &inflateReader{
		stackedCloser: stackedCloser{ReadCloser: dr, under: rc},
		src:           src,
		req:           req,
	}, nil
}

// sourceReader remembers the first non-EOF error of the stored object so
// it can be told apart from corruption found by the decompressor.
type sourceReader struct {
	io.ReadCloser
	err error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

// inflateReader reports corrupt compressed data as *DecodeError. Source
// read errors pass through unchanged.
type inflateReader struct {
	stackedCloser
	src *sourceReader
	req request
}

func (r *inflateReader) Read(p []byte) (int, error) {
	n, err := r.stackedCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	if r.src.err != nil {
		return n, r.src.err
	}
	return n, newDecodeError(r.req.format, fmt.Errorf("%s: %w", r.req.compression, err))
}

// window fetches up to n+1 leading bytes of the (decompressed) object and
// its stored size, -1 when the decompressed size is unknown.
func (p *Previewer) window(ctx context.Context, req request, n int) ([]byte, int64, error) {
	if req.compression == CompressionNone {
		info, err := p.src.Stat(ctx, req.ref.Key)
		if err != nil {
			return nil, 0, err
		}
		data, err := p.src.ReadRange(ctx, req.ref.Key, 0, int64(n)+1)
		if err != nil {
			return nil, 0, err
		}
		return data, info.Size, nil
	}
	data, err := p.readAtMost(ctx, req, int64(n)+1)
	return data, -1, err
}

// readAtMost reads up to n bytes of the (decompressed) object.
func (p *Previewer) readAtMost(ctx context.Context, req request, n int64) ([]byte, error) {
	rc, err := p.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, n))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.ref.Key, err)
	}
	return data, nil
}

// randomAccess returns a ReaderAt over the object. Compressed objects are
// inflated into memory, bounded by the parse cap.
func (p *Previewer) randomAccess(ctx context.Context, req request) (io.ReaderAt, int64, func(), error) {
	if req.compression == CompressionNone {
		ra, err := p.src.ReaderAt(ctx, req.ref.Key)
		if err != nil {
			return nil, 0, nil, err
		}
		return ra, ra.Size(), func() { _ = ra.Close() }, nil
	}
	data, err := p.readAtMost(ctx, req, req.limits.ParseCap+1)
	if err != nil {
		return nil, 0, nil, err
	}
	if int64(len(data)) > req.limits.ParseCap {
		return nil, 0, nil, newDecodeError(req.format, errors.New("decompressed object exceeds parse cap"))
	}
	return bytes.NewReader(data), int64(len(data)), func() {}, nil
}

type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

// -----------------------------------------------------------------------------
// Degrading
// -----------------------------------------------------------------------------

// settle returns rec, or degrades a *ParseFailure to a text view of data
// (or of the failure's rendered form).
func settle(req request, data []byte, rec *PreviewRecord, err error) (Result, error) {
	if err == nil {
		return rec, nil
	}
	var pf *ParseFailure
	if !errors.As(err, &pf) {
		return nil, err
	}
	text := data
	if pf.Rendered != nil {
		text = pf.Rendered
	}
	return RenderText(text, req.limits.ByteCap, pf.Error()), nil
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func previewCSV(ctx context.Context, p *Previewer, req request) (Result, error) {
	rc, err := p.open(ctx, req)
	if err != nil {
		return nil, err
	}
	rec, err := normalizeCSV(rc, csvDelimiter(req.ref.Key), req.limits.RowLimit)
	_ = rc.Close()
	if err == nil {
		return rec, nil
	}

	var pf *ParseFailure
	if !errors.As(err, &pf) {
		return nil, err
	}
	data, _, werr := p.window(ctx, req, req.limits.ByteCap)
	if werr != nil {
		return nil, werr
	}
	return settle(req, data, nil, err)
}

// document reads a whole text document, reporting whether it exceeded the
// parse cap.
func (p *Previewer) document(ctx context.Context, req request) ([]byte, bool, error) {
	data, err := p.readAtMost(ctx, req, req.limits.ParseCap+1)
	if err != nil {
		return nil, false, err
	}
	return data, int64(len(data)) > req.limits.ParseCap, nil
}

func previewJSON(ctx context.Context, p *Previewer, req request) (Result, error) {
	return previewDocument(ctx, p, req, normalizeJSON)
}

func previewXML(ctx context.Context, p *Previewer, req request) (Result, error) {
	return previewDocument(ctx, p, req, normalizeXML)
}

func previewDocument(ctx context.Context, p *Previewer, req request, normalize func([]byte, int) (*PreviewRecord, error)) (Result, error) {
	data, oversized, err := p.document(ctx, req)
	if err != nil {
		return nil, err
	}
	if oversized {
		return settle(req, data, nil, &ParseFailure{
			Format: req.format,
			Reason: fmt.Sprintf("object exceeds parse cap of %d bytes", req.limits.ParseCap),
		})
	}
	rec, err := normalize(data, req.limits.RowLimit)
	return settle(req, data, rec, err)
}

func previewParquet(ctx context.Context, p *Previewer, req request) (Result, error) {
	ra, size, done, err := p.randomAccess(ctx, req)
	if err != nil {
		return nil, err
	}
	defer done()
	rec, err := readParquet(ra, size, req.limits.RowLimit)
	if err != nil {
		return nil, newDecodeError(FormatParquet, err)
	}
	return rec, nil
}

func previewAvro(ctx context.Context, p *Previewer, req request) (Result, error) {
	rc, err := p.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	rec, err := readAvro(rc, req.limits.RowLimit)
	if err != nil {
		return nil, newDecodeError(FormatAvro, err)
	}
	return rec, nil
}

func previewDelta(ctx context.Context, p *Previewer, req request) (Result, error) {
	table := strings.Trim(req.ref.Key, "/")
	log, err := listDeltaLog(ctx, p.src, table)
	if errors.Is(err, ErrNoDeltaLog) {
		return nil, newDecodeError(FormatDelta, err)
	}
	if err != nil {
		return nil, err
	}
	rec, err := readDelta(ctx, p.src, table, log, req.limits)
	if err != nil {
		return nil, newDecodeError(FormatDelta, err)
	}
	return rec, nil
}

func previewRaw(ctx context.Context, p *Previewer, req request) (Result, error) {
	data, size, err := p.window(ctx, req, req.limits.ByteCap)
	if err != nil {
		return nil, err
	}
	raw := RenderFallback(data, req.limits.ByteCap)
	raw.Size = size
	return raw, nil
}

// previewBinary sniffs magic bytes before falling back to a raw view.
func previewBinary(ctx context.Context, p *Previewer, req request) (Result, error) {
	data, size, err := p.window(ctx, req, req.limits.ByteCap)
	if err != nil {
		return nil, err
	}
	if req.sniff {
		if f := Sniff(data); f != FormatBinary {
			req.format = f
			req.sniff = false
			return handlers[f](ctx, p, req)
		}
	}
	raw := RenderFallback(data, req.limits.ByteCap)
	raw.Size = size
	return raw, nil
}
