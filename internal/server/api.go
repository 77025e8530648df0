package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justapithecus/deltaview/deltaview"
)

// pinger is implemented by sources with a cheap reachability check.
type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	src := s.previewer.Source()
	var err error
	if p, ok := src.(pinger); ok {
		err = p.Ping(c.Request.Context())
	} else {
		_, err = src.List(c.Request.Context(), "", deltaview.ListOptions{Delimiter: "/", Limit: 1})
	}
	if err != nil {
		requestLog(c).Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"bucket": s.cfg.Bucket,
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bucket": s.cfg.Bucket})
}

// handleAPIList handles GET /api/list?path=&token=
func (s *Server) handleAPIList(c *gin.Context) {
	listing, err := s.browse(c)
	if err != nil {
		abortJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listing": listing,
		"crumbs":  deltaview.Breadcrumbs(listing.Prefix),
	})
}

// handleAPIPreview handles GET /api/preview?key=&format=&rows=&bytes=
func (s *Server) handleAPIPreview(c *gin.Context) {
	key := c.Query("key")
	hint, err := deltaview.ParseFormatTag(c.Query("format"))
	if err != nil {
		abortJSON(c, err)
		return
	}
	limits, err := s.limits(c)
	if err != nil {
		abortJSON(c, err)
		return
	}
	res, err := s.preview(c.Request.Context(), deltaview.ObjectRef{Key: key}, hint, limits)
	if err != nil {
		abortJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "preview": res})
}

// handleAPIDelta handles GET /api/delta?path=&rows=
func (s *Server) handleAPIDelta(c *gin.Context) {
	table, err := tablePath(c)
	if err != nil {
		abortJSON(c, err)
		return
	}
	limits, err := s.limits(c)
	if err != nil {
		abortJSON(c, err)
		return
	}
	res, err := s.preview(c.Request.Context(), deltaview.ObjectRef{Key: table}, deltaview.FormatDelta, limits)
	if err != nil {
		abortJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": table, "preview": res})
}

// tablePath returns the normalized Delta table folder from the path query.
func tablePath(c *gin.Context) (string, error) {
	table := deltaview.NormalizePrefix(c.Query("path"))
	if table == "" {
		return "", fmt.Errorf("%w: no path specified", deltaview.ErrInvalidKey)
	}
	return table, nil
}

func (s *Server) browse(c *gin.Context) (*deltaview.Listing, error) {
	return deltaview.Browse(c.Request.Context(), s.previewer.Source(), c.Query("path"), deltaview.BrowseOptions{
		Limit: s.cfg.PageSize,
		Token: c.Query("token"),
	})
}

// limits lowers the configured bounds by the rows and bytes query
// parameters, when present.
func (s *Server) limits(c *gin.Context) (deltaview.Limits, error) {
	l := s.cfg.Limits
	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"rows", &l.RowLimit},
		{"bytes", &l.ByteCap},
	} {
		raw, ok := c.GetQuery(q.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return l, fmt.Errorf("%w: %s must be a positive integer, got %q", deltaview.ErrInvalidLimits, q.name, raw)
		}
		*q.dst = min(n, *q.dst)
	}
	return l, nil
}
