package deltaview

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Entry is one folder or file in a listing.
type Entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified,omitzero"`
	Folder   bool      `json:"folder"`
	Data     bool      `json:"data"`
}

// Listing is one page of a folder.
type Listing struct {
	Prefix    string  `json:"prefix"`
	Folders   []Entry `json:"folders"`
	Files     []Entry `json:"files"`
	NextToken string  `json:"next_token,omitempty"`
}

// BrowseOptions controls a Browse call.
type BrowseOptions struct {
	Limit int
	Token string
}

// Browse lists the immediate folders and files under prefix.
// Folders come first; both groups are in key order.
func Browse(ctx context.Context, src Source, prefix string, opts BrowseOptions) (*Listing, error) {
	prefix = NormalizePrefix(prefix)
	page, err := src.List(ctx, prefix, ListOptions{
		Delimiter:         "/",
		Limit:             opts.Limit,
		ContinuationToken: opts.Token,
	})
	if err != nil {
		return nil, err
	}

	l := &Listing{
		Prefix:    prefix,
		Folders:   []Entry{},
		Files:     []Entry{},
		NextToken: page.NextToken,
	}
	for _, p := range page.Prefixes {
		l.Folders = append(l.Folders, Entry{
			Name:   ObjectRef{Key: p}.Name(),
			Path:   p,
			Folder: true,
		})
	}
	for _, obj := range page.Objects {
		// Zero-byte folder markers.
		if obj.Key == prefix || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := ObjectRef{Key: obj.Key}.Name()
		l.Files = append(l.Files, Entry{
			Name:     name,
			Path:     obj.Key,
			Size:     obj.Size,
			Modified: obj.LastModified,
			Data:     IsDataFile(name),
		})
	}

	byPath := func(a, b Entry) int { return strings.Compare(a.Path, b.Path) }
	slices.SortFunc(l.Folders, byPath)
	slices.SortFunc(l.Files, byPath)
	return l, nil
}

// NormalizePrefix strips a leading slash and ensures a non-empty prefix ends
// with one.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// Crumb is one step of a breadcrumb trail.
type Crumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Breadcrumbs returns the trail leading to p, one crumb per segment.
// Folder crumbs carry a trailing slash; a final object segment does not.
func Breadcrumbs(p string) []Crumb {
	ref := ObjectRef{Key: p}
	segs := ref.Segments()
	crumbs := make([]Crumb, 0, len(segs))
	for i, s := range segs {
		path := strings.Join(segs[:i+1], "/")
		if i < len(segs)-1 || ref.IsPrefix() {
			path += "/"
		}
		crumbs = append(crumbs, Crumb{Name: s, Path: path})
	}
	return crumbs
}
