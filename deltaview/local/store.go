// Package local provides a filesystem Source for deltaview.
//
// Keys are slash-separated paths relative to a root directory. The store is
// read-only and confines every key to the root.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/justapithecus/deltaview/deltaview"
)

// defaultListLimit caps a page when ListOptions.Limit is zero.
const defaultListLimit = 1000

// Store implements deltaview.Source over an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

var _ deltaview.Source = (*Store)(nil)

// New creates a store rooted at root within fsys.
func New(fsys afero.Fs, root string) (*Store, error) {
	if fsys == nil {
		return nil, errors.New("local: filesystem is required")
	}
	ok, err := afero.DirExists(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("local: stat root: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("local: root %q is not a directory", root)
	}
	return &Store{fs: afero.NewBasePathFs(fsys, root), root: root}, nil
}

// NewOS creates a store over a directory of the host filesystem.
func NewOS(root string) (*Store, error) {
	return New(afero.NewOsFs(), root)
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Stat returns the file's size and modification time.
func (s *Store) Stat(_ context.Context, key string) (deltaview.ObjectInfo, error) {
	name, err := cleanKey(key)
	if err != nil {
		return deltaview.ObjectInfo{}, err
	}
	fi, err := s.fs.Stat(name)
	if err != nil {
		return deltaview.ObjectInfo{}, mapError(err)
	}
	if fi.IsDir() {
		return deltaview.ObjectInfo{}, deltaview.ErrNotFound
	}
	return deltaview.ObjectInfo{Key: name, Size: fi.Size(), LastModified: fi.ModTime().UTC()}, nil
}

// Open returns a reader for the whole file.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, _, err := s.openFile(ctx, key)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ReadRange reads up to length bytes at offset. A range past EOF returns the
// available bytes.
func (s *Store) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, deltaview.ErrInvalidKey
	}
	f, fi, err := s.openFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if offset >= fi.Size() || length == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, min(length, fi.Size()-offset))
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("local: read range: %w", err)
	}
	return buf[:n], nil
}

// ReaderAt returns a random-access reader over the file.
func (s *Store) ReaderAt(ctx context.Context, key string) (deltaview.ReaderAt, error) {
	f, fi, err := s.openFile(ctx, key)
	if err != nil {
		return nil, err
	}
	return &readerAt{File: f, size: fi.Size()}, nil
}

type readerAt struct {
	afero.File
	size int64
}

func (r *readerAt) Size() int64 { return r.size }

// List returns one page of files under prefix in key order. Prefix matching
// follows object store semantics: "data/a" matches "data/a.csv" and
// "data/abc/x.json". With a "/" delimiter, subdirectories are returned as
// prefixes instead of being descended into.
func (s *Store) List(_ context.Context, prefix string, opts deltaview.ListOptions) (deltaview.ListPage, error) {
	if opts.Delimiter != "" && opts.Delimiter != "/" {
		return deltaview.ListPage{}, fmt.Errorf("local: unsupported delimiter %q", opts.Delimiter)
	}
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" {
		if _, err := cleanKey(prefix); err != nil {
			return deltaview.ListPage{}, err
		}
	}

	dir := "."
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		dir = prefix[:i]
	}

	type entry struct {
		key  string
		info fs.FileInfo
	}
	var entries []entry
	if opts.Delimiter == "/" {
		infos, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return deltaview.ListPage{}, nil
			}
			return deltaview.ListPage{}, fmt.Errorf("local: read dir: %w", err)
		}
		for _, fi := range infos {
			key := path.Join(dir, fi.Name())
			if fi.IsDir() {
				key += "/"
			}
			if strings.HasPrefix(key, prefix) {
				entries = append(entries, entry{key: key, info: fi})
			}
		}
	} else {
		err := afero.Walk(s.fs, dir, func(p string, fi fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			key := strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
			if !fi.IsDir() && strings.HasPrefix(key, prefix) {
				entries = append(entries, entry{key: key, info: fi})
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deltaview.ListPage{}, fmt.Errorf("local: walk: %w", err)
		}
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var page deltaview.ListPage
	count, last := 0, ""
	for _, e := range entries {
		if opts.ContinuationToken != "" && e.key <= opts.ContinuationToken {
			continue
		}
		if count == limit {
			page.NextToken = last
			break
		}
		if e.info.IsDir() {
			page.Prefixes = append(page.Prefixes, e.key)
		} else {
			page.Objects = append(page.Objects, deltaview.ObjectInfo{
				Key:          e.key,
				Size:         e.info.Size(),
				LastModified: e.info.ModTime().UTC(),
			})
		}
		last = e.key
		count++
	}
	return page, nil
}

func (s *Store) openFile(_ context.Context, key string) (afero.File, fs.FileInfo, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, nil, mapError(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, mapError(err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, nil, deltaview.ErrNotFound
	}
	return f, fi, nil
}

// cleanKey validates a key and returns it in canonical relative form.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", deltaview.ErrInvalidKey
	}
	cleaned := path.Clean(strings.TrimLeft(key, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", deltaview.ErrInvalidKey
	}
	return cleaned, nil
}

func mapError(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return deltaview.ErrNotFound
	}
	return fmt.Errorf("local: %w", err)
}
