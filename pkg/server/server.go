// Package server exposes the scoring pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/hed1ad/fraudshield/pkg/cache"
	"github.com/hed1ad/fraudshield/pkg/config"
	"github.com/hed1ad/fraudshield/pkg/metrics"
	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

const (
	serverMaxHeaderBytes = 20

	// multipart parts above this size spill to temporary files
	multipartMemory = 8 << 20
)

// Server serves scoring requests.
type Server struct {
	cfg         config.Server
	pipeline    *pipeline.Pipeline
	cache       cache.Cache
	fingerprint string
	metrics     *metrics.Metrics
	handler     http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithCache enables result caching. fingerprint identifies the loaded
// artifacts so results never outlive the models that produced them.
func WithCache(c cache.Cache, fingerprint string) Option {
	return func(s *Server) {
		s.cache = c
		s.fingerprint = fingerprint
	}
}

// WithMetrics sets the metrics collectors. A private set is created otherwise.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a Server over p.
func New(cfg config.Server, p *pipeline.Pipeline, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline required")
	}

	s := &Server{cfg: cfg, pipeline: p}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.handler = s.corsHandler(s.router())
	return s, nil
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = multipartMemory
	r.Use(requestID(), accessLog(), gin.Recovery())

	r.GET("/", healthHandler)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.POST(predictPath, s.predictHandler)
	r.POST(downloadPath, s.downloadHandler)

	return r
}

func (s *Server) corsHandler(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowCredentials: s.cfg.CORS.AllowCredentials,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodHead,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader, "Content-Disposition"},
	}).Handler(h)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.cfg.Address,
		Handler:        s.handler,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.WithField("address", s.cfg.Address).Info("server started")

	select {
	case err := <-errCh:
		return errors.Wrap(err, "error starting server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	log.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "error shutting down server")
	}
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 5 * time.Second
}
