package local

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/deltaview/deltaview"
)

func newMemStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/bucket", 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, "/bucket/"+name, []byte(content), 0o644))
	}
	store, err := New(fsys, "/bucket")
	require.NoError(t, err)
	return store
}

func TestNew_RequiresDirectory(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_, err := New(fsys, "/missing")
	assert.Error(t, err)

	_, err = New(nil, "/")
	assert.Error(t, err)
}

func TestStore_StatOpen(t *testing.T) {
	store := newMemStore(t, map[string]string{"data/a.csv": "x\n1\n"})

	info, err := store.Stat(t.Context(), "data/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "data/a.csv", info.Key)
	assert.Equal(t, int64(4), info.Size)

	rc, err := store.Open(t.Context(), "/data/a.csv")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", string(data))
}

func TestStore_NotFoundAndInvalid(t *testing.T) {
	store := newMemStore(t, map[string]string{"data/a.csv": "x"})
	ctx := t.Context()

	_, err := store.Stat(ctx, "data/missing.csv")
	assert.ErrorIs(t, err, deltaview.ErrNotFound)

	_, err = store.Open(ctx, "data")
	assert.ErrorIs(t, err, deltaview.ErrNotFound, "directories are not objects")

	for _, key := range []string{"", "..", "../outside", "."} {
		_, err = store.Open(ctx, key)
		assert.ErrorIs(t, err, deltaview.ErrInvalidKey, "key %q", key)
	}
}

func TestStore_ReadRange(t *testing.T) {
	store := newMemStore(t, map[string]string{"f.txt": "hello world"})
	ctx := t.Context()

	data, err := store.ReadRange(ctx, "f.txt", 6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = store.ReadRange(ctx, "f.txt", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "lo world", string(data))

	data, err = store.ReadRange(ctx, "f.txt", 100, 1)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = store.ReadRange(ctx, "f.txt", -1, 1)
	assert.ErrorIs(t, err, deltaview.ErrInvalidKey)
}

func TestStore_ReaderAt(t *testing.T) {
	store := newMemStore(t, map[string]string{"f.bin": "0123456789"})

	ra, err := store.ReaderAt(t.Context(), "f.bin")
	require.NoError(t, err)
	defer func() { _ = ra.Close() }()

	assert.Equal(t, int64(10), ra.Size())
	buf := make([]byte, 3)
	_, err = ra.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, "789", string(buf))
}

func TestStore_List_Delimiter(t *testing.T) {
	store := newMemStore(t, map[string]string{
		"top.csv":            "1",
		"data/a.csv":         "1",
		"data/b.json":        "{}",
		"data/nested/c.json": "{}",
	})

	page, err := store.List(t.Context(), "", deltaview.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/"}, page.Prefixes)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "top.csv", page.Objects[0].Key)

	page, err = store.List(t.Context(), "data/", deltaview.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/nested/"}, page.Prefixes)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "data/a.csv", page.Objects[0].Key)
	assert.Equal(t, "data/b.json", page.Objects[1].Key)
}

func TestStore_List_RecursiveAndPartialPrefix(t *testing.T) {
	store := newMemStore(t, map[string]string{
		"data/a.csv":      "1",
		"data/abc/x.json": "{}",
		"data/b.json":     "{}",
		"other/skip.txt":  "s",
	})

	page, err := store.List(t.Context(), "data/a", deltaview.ListOptions{})
	require.NoError(t, err)
	var keys []string
	for _, o := range page.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"data/a.csv", "data/abc/x.json"}, keys)
}

func TestStore_List_Pagination(t *testing.T) {
	store := newMemStore(t, map[string]string{"a": "1", "b": "1", "c": "1"})

	page, err := store.List(t.Context(), "", deltaview.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	require.True(t, page.HasMore())

	page, err = store.List(t.Context(), "", deltaview.ListOptions{Limit: 2, ContinuationToken: page.NextToken})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "c", page.Objects[0].Key)
	assert.False(t, page.HasMore())
}

func TestStore_List_MissingPrefix(t *testing.T) {
	store := newMemStore(t, nil)

	page, err := store.List(t.Context(), "nope/", deltaview.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
	assert.Empty(t, page.Prefixes)
}
