// Package server serves the deltaview browser and its JSON API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justapithecus/deltaview/deltaview"
	"github.com/justapithecus/deltaview/internal/metrics"
)

// Config holds the per-server settings.
type Config struct {
	// Bucket is shown in page headers and the health response.
	Bucket string

	// Limits are the bounds applied to every preview. Requests may lower
	// them but never raise them.
	Limits deltaview.Limits

	// PageSize caps folder listings. Zero uses the source default.
	PageSize int

	// WriteTimeout bounds a single response. Zero disables it.
	WriteTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors. The default is a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server routes HTTP requests to a Previewer.
type Server struct {
	previewer *deltaview.Previewer
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	pages     *template.Template
}

// New creates a Server.
func New(p *deltaview.Previewer, cfg Config, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("server: previewer is required")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("server: parsing templates: %w", err)
	}
	s := &Server{
		previewer: p,
		cfg:       cfg,
		logger:    zap.NewNop(),
		pages:     pages,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s, nil
}

// Handler returns the configured router.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.SetHTMLTemplate(s.pages)

	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(s.logger))
	router.Use(s.metrics.Middleware())

	router.GET("/", s.handleIndex)
	router.GET("/view", s.handleView)
	router.GET("/delta", s.handleDelta)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/list", s.handleAPIList)
		api.GET("/preview", s.handleAPIPreview)
		api.GET("/delta", s.handleAPIDelta)
	}

	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("bucket", s.cfg.Bucket))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// preview runs one preview and records its metrics.
func (s *Server) preview(ctx context.Context, ref deltaview.ObjectRef, hint deltaview.FormatTag, limits deltaview.Limits) (deltaview.Result, error) {
	label := hint
	if label == deltaview.FormatAuto {
		label = deltaview.Classify(ref.Key)
	}

	start := time.Now()
	res, err := s.previewer.Preview(ctx, ref, hint, limits)
	elapsed := time.Since(start)

	switch r := res.(type) {
	case *deltaview.PreviewRecord:
		s.metrics.ObservePreview(string(label), metrics.OutcomeRecord, len(r.Rows), elapsed)
	case *deltaview.RawPreview:
		s.metrics.ObservePreview(string(label), metrics.OutcomeRaw, 0, elapsed)
	default:
		if err != nil {
			s.metrics.ObservePreview(string(label), metrics.OutcomeError, 0, elapsed)
		}
	}
	return res, err
}
