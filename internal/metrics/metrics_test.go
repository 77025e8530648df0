package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/preview", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, target := range []string{"/api/preview?key=a.csv", "/api/preview?key=b.csv", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/preview", "418", "GET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404", "GET")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestObservePreview(t *testing.T) {
	m := New()
	m.ObservePreview("csv", OutcomeRecord, 10, time.Millisecond)
	m.ObservePreview("csv", OutcomeRaw, 0, time.Millisecond)
	m.ObservePreview("parquet", OutcomeError, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.previews.WithLabelValues("csv", OutcomeRecord)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.previews.WithLabelValues("csv", OutcomeRaw)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.previews.WithLabelValues("parquet", OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.rows))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePreview("json", OutcomeRecord, 3, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `deltaview_preview_total{format="json",outcome="record"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
