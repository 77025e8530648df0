// Package s3 provides an S3-compatible Source for deltaview.
//
// This adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores.
//
// # Reads
//
//   - Stat/ReaderAt: HeadObject for size and modification time
//   - Open: GetObject streaming the full body
//   - ReadRange: true range reads via HTTP Range header
//   - List: one ListObjectsV2 page, with delimiter grouping into prefixes
//
// Missing objects map to deltaview.ErrNotFound and malformed keys to
// deltaview.ErrInvalidKey. The store never writes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/deltaview/deltaview"
)

// maxReadRangeLength is the maximum length for ReadRange to prevent overflow
// when converting int64 to int on 32-bit platforms.
const maxReadRangeLength = int64(math.MaxInt)

// maxListKeys is the S3 per-request listing ceiling.
const maxListKeys = 1000

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// If set, all keys are prefixed with this value (with a trailing slash added if missing).
	Prefix string
}

// Store implements deltaview.Source using an S3-compatible backend.
type Store struct {
	client API
	bucket string
	prefix string
}

var _ deltaview.Source = (*Store)(nil)

// New creates a new S3 store with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use internal/s3.NewClient or github.com/aws/aws-sdk-go-v2/config to build one.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store, err := s3store.New(client, s3store.Config{Bucket: "my-bucket"})
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("s3: bucket %q: %w", s.bucket, deltaview.ErrNotFound)
		}
		return fmt.Errorf("s3: head bucket: %w", err)
	}
	return nil
}

// Stat returns the object's size and modification time.
func (s *Store) Stat(ctx context.Context, key string) (deltaview.ObjectInfo, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return deltaview.ObjectInfo{}, err
	}

	out, err := s.head(ctx, fullKey)
	if err != nil {
		return deltaview.ObjectInfo{}, err
	}
	return deltaview.ObjectInfo{
		Key:          strings.TrimPrefix(fullKey, s.prefix),
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Open returns a reader for the whole object.
// Returns ErrNotFound if the object does not exist.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, deltaview.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}

	return out.Body, nil
}

// List returns one page of keys under prefix. With a delimiter, keys sharing
// a prefix up to the delimiter are grouped into ListPage.Prefixes.
// Keys and prefixes are returned relative to the store prefix.
func (s *Store) List(ctx context.Context, prefix string, opts deltaview.ListOptions) (deltaview.ListPage, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return deltaview.ListPage{}, err
	}

	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	}
	if opts.Delimiter != "" {
		in.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.Limit > 0 {
		in.MaxKeys = aws.Int32(int32(min(opts.Limit, maxListKeys)))
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return deltaview.ListPage{}, fmt.Errorf("s3: bucket %q: %w", s.bucket, deltaview.ErrNotFound)
		}
		return deltaview.ListPage{}, fmt.Errorf("s3: list objects: %w", err)
	}

	var page deltaview.ListPage
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		page.Objects = append(page.Objects, deltaview.ObjectInfo{
			// Strip the store prefix to return relative keys
			Key:          strings.TrimPrefix(*obj.Key, s.prefix),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			page.Prefixes = append(page.Prefixes, strings.TrimPrefix(*cp.Prefix, s.prefix))
		}
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

// ReadRange reads a byte range from the given key.
// Returns ErrNotFound if the key does not exist.
// Returns ErrInvalidKey for negative offset/length, overflow, or invalid keys.
// If offset is beyond EOF, returns empty slice.
// If range extends beyond EOF, returns available bytes.
// If length is 0, returns empty slice after an existence check.
func (s *Store) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || length > maxReadRangeLength {
		return nil, deltaview.ErrInvalidKey
	}
	if offset > math.MaxInt64-length {
		return nil, deltaview.ErrInvalidKey
	}

	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	// Zero-length read: verify existence then return empty slice.
	if length == 0 {
		if _, err := s.head(ctx, fullKey); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	end := offset + length - 1
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, end)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, deltaview.ErrNotFound
		}
		// Check for InvalidRange (offset beyond EOF)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: reading range body: %w", err)
	}

	return data, nil
}

// ReaderAt returns a random-access reader backed by range reads.
// Returns ErrNotFound if the key does not exist.
// The returned reader supports concurrent reads at different offsets.
func (s *Store) ReaderAt(ctx context.Context, key string) (deltaview.ReaderAt, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.head(ctx, fullKey)
	if err != nil {
		return nil, err
	}

	return &readerAt{
		store:   s,
		key:     fullKey,
		size:    aws.ToInt64(out.ContentLength),
		baseCtx: ctx,
	}, nil
}

// readerAt implements deltaview.ReaderAt using S3 range reads.
// It is safe for concurrent use.
type readerAt struct {
	store   *Store
	key     string
	size    int64
	baseCtx context.Context
}

// ReadAt implements io.ReaderAt.
func (r *readerAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("s3: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= r.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	out, err := r.store.client.GetObject(r.baseCtx, &s3.GetObjectInput{
		Bucket: aws.String(r.store.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		// Check for InvalidRange (offset beyond EOF)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err = io.ReadFull(out.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Partial read (requested range extends beyond EOF)
		err = io.EOF
	}
	return n, err
}

func (r *readerAt) Size() int64 { return r.size }

func (r *readerAt) Close() error { return nil }

// head issues HeadObject, mapping missing objects to ErrNotFound.
func (s *Store) head(ctx context.Context, fullKey string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, deltaview.ErrNotFound
		}
		return nil, fmt.Errorf("s3: head object: %w", err)
	}
	return out, nil
}

// validateKey validates and returns the full key for object operations.
func (s *Store) validateKey(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", deltaview.ErrInvalidKey
	}

	// Normalize the key
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", deltaview.ErrInvalidKey
	}
	// Remove leading slash
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", deltaview.ErrInvalidKey
	}

	return s.prefix + cleaned, nil
}

// validatePrefix validates and returns the full prefix for list operations.
// A trailing slash is preserved so folder listings stay scoped to the folder.
func (s *Store) validatePrefix(prefix string) (string, error) {
	if prefix == "" {
		return s.prefix, nil
	}

	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", deltaview.ErrInvalidKey
	}
	if cleaned == "." || cleaned == "/" {
		return s.prefix, nil
	}
	// Remove leading slash
	cleaned = strings.TrimPrefix(cleaned, "/")
	if strings.HasSuffix(prefix, "/") {
		cleaned += "/"
	}

	return s.prefix + cleaned, nil
}

// isNotFound checks if an error indicates the object or bucket was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket" || code == "404"
	}
	return false
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

type mockObject struct {
	data     []byte
	modified time.Time
}

// MockS3Client is a test double for API backed by an in-memory bucket.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string]mockObject
	now     func() time.Time

	// Call counters for test assertions.
	GetObjectCalls     int
	HeadObjectCalls    int
	ListObjectsV2Calls int

	// ListErr, when set, is returned by ListObjectsV2 and HeadBucket.
	ListErr error
}

// NewMockS3Client creates an empty mock bucket.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string]mockObject),
		now:     time.Now,
	}
}

// PutObject stores data under key.
func (m *MockS3Client) PutObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = mockObject{data: bytes.Clone(data), modified: m.now().UTC()}
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	obj, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}
	data := obj.data

	// Handle range requests
	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		_, _ = fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}

		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	obj, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &smithyAPIError{code: "NotFound", message: "not found"}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// HeadBucket implements API.HeadBucket for testing.
func (m *MockS3Client) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return &s3.HeadBucketOutput{}, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing, including
// delimiter grouping, MaxKeys and continuation tokens. The token is the
// last key or prefix of the previous page.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)
	after := aws.ToString(params.ContinuationToken)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = maxListKeys
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListObjectsV2Calls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := make(map[string]bool)
	last := ""
	count := 0
	for _, key := range keys {
		entry, isPrefix := key, false
		if delimiter != "" {
			if i := strings.Index(key[len(prefix):], delimiter); i >= 0 {
				entry, isPrefix = key[:len(prefix)+i+len(delimiter)], true
			}
		}
		if entry <= after || seen[entry] {
			continue
		}
		if count == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(last)
			break
		}
		seen[entry] = true
		if isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			obj := m.objects[key]
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(int64(len(obj.data))),
				LastModified: aws.Time(obj.modified),
			})
		}
		last = entry
		count++
	}

	return out, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
