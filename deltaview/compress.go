package deltaview

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names a whole-object compression wrapper.
type Compression string

// Compression values detected from key suffixes.
const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// decompressor unwraps a compressed object stream.
type decompressor interface {
	Name() Compression
	Extensions() []string
	Decompress(r io.Reader) (io.ReadCloser, error)
}

var decompressors = []decompressor{
	gzipDecompressor{},
	zstdDecompressor{},
}

// DetectCompression returns the compression implied by the key's suffix.
func DetectCompression(key string) Compression {
	if d, _ := matchCompression(key); d != nil {
		return d.Name()
	}
	return CompressionNone
}

// stripCompression removes one compression suffix from key.
func stripCompression(key string) string {
	if _, ext := matchCompression(key); ext != "" {
		return key[:len(key)-len(ext)]
	}
	return key
}

func matchCompression(key string) (decompressor, string) {
	lower := strings.ToLower(key)
	for _, d := range decompressors {
		for _, ext := range d.Extensions() {
			if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
				return d, ext
			}
		}
	}
	return nil, ""
}

// decompress wraps r according to c. CompressionNone passes r through.
func decompress(c Compression, r io.Reader) (io.ReadCloser, error) {
	for _, d := range decompressors {
		if d.Name() == c {
			return d.Decompress(r)
		}
	}
	return io.NopCloser(r), nil
}

// -----------------------------------------------------------------------------
// Gzip
// -----------------------------------------------------------------------------

type gzipDecompressor struct{}

func (gzipDecompressor) Name() Compression { return CompressionGzip }

func (gzipDecompressor) Extensions() []string { return []string{".gz", ".gzip"} }

func (gzipDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd
// -----------------------------------------------------------------------------

type zstdDecompressor struct{}

func (zstdDecompressor) Name() Compression { return CompressionZstd }

func (zstdDecompressor) Extensions() []string { return []string{".zst", ".zstd"} }

func (zstdDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}
