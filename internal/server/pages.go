package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/justapithecus/deltaview/deltaview"
)

//go:embed templates/*.html
var templateFS embed.FS

// page is the data every template receives.
type page struct {
	Title   string
	Bucket  string
	Crumbs  []deltaview.Crumb
	Listing *deltaview.Listing
	Key     string
	Record  *deltaview.PreviewRecord
	Raw     *deltaview.RawPreview
	Status  int
	Error   string
}

func parsePages() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"cell":   cell,
		"size":   humanSize,
		"folder": func(p string) bool { return strings.HasSuffix(p, "/") },
	}).ParseFS(templateFS, "templates/*.html")
}

// cell renders one table cell; absent and null cells are blank.
func cell(row deltaview.Row, col string) string {
	v, ok := row[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (s *Server) newPage(title, key string) page {
	return page{
		Title:  title,
		Bucket: s.cfg.Bucket,
		Key:    key,
		Crumbs: deltaview.Breadcrumbs(key),
	}
}

// renderError renders the error panel with the mapped status.
func (s *Server) renderError(c *gin.Context, p page, err error) {
	p.Status = statusFor(err)
	p.Error = err.Error()
	if p.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.HTML(p.Status, "error.html", p)
}

// handleIndex handles GET /?path=
func (s *Server) handleIndex(c *gin.Context) {
	p := s.newPage("Browse", deltaview.NormalizePrefix(c.Query("path")))
	listing, err := s.browse(c)
	if err != nil {
		s.renderError(c, p, err)
		return
	}
	p.Listing = listing
	c.HTML(http.StatusOK, "index.html", p)
}

// handleView handles GET /view?file=&format=
func (s *Server) handleView(c *gin.Context) {
	key := c.Query("file")
	p := s.newPage(deltaview.ObjectRef{Key: key}.Name(), key)

	hint, err := deltaview.ParseFormatTag(c.Query("format"))
	if err != nil {
		s.renderError(c, p, err)
		return
	}
	limits, err := s.limits(c)
	if err != nil {
		s.renderError(c, p, err)
		return
	}
	s.renderPreview(c, p, hint, limits)
}

// handleDelta handles GET /delta?path=
func (s *Server) handleDelta(c *gin.Context) {
	table, err := tablePath(c)
	p := s.newPage("Delta table "+table, table)
	if err != nil {
		s.renderError(c, p, err)
		return
	}

	limits, err := s.limits(c)
	if err != nil {
		s.renderError(c, p, err)
		return
	}
	s.renderPreview(c, p, deltaview.FormatDelta, limits)
}

func (s *Server) renderPreview(c *gin.Context, p page, hint deltaview.FormatTag, limits deltaview.Limits) {
	res, err := s.preview(c.Request.Context(), deltaview.ObjectRef{Key: p.Key}, hint, limits)
	if err != nil {
		s.renderError(c, p, err)
		return
	}
	switch r := res.(type) {
	case *deltaview.PreviewRecord:
		p.Record = r
	case *deltaview.RawPreview:
		p.Raw = r
	}
	c.HTML(http.StatusOK, "view.html", p)
}
