// Package server exposes stored data, crawler health and digests over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/degendigest/internal/scheduler"
	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/digest"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Refresher performs an on-demand migration, as POST /api/refresh.
type Refresher interface {
	Refresh(ctx context.Context, opts scheduler.RefreshOptions) (*scheduler.RefreshResult, error)
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	digests   *digest.Store
	refresher Refresher
	staticDir string
	limiter   *rate.Limiter
	registry  *prometheus.Registry
	metrics   *httpMetrics
	port      int
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRefresher enables POST /api/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithStaticDir serves HTML pages from dir for non-API paths.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithRateLimit limits API requests to rps with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRegistry registers HTTP metrics on reg and serves it at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithPort sets the listen port.
func WithPort(port int) Option {
	return func(s *Server) {
		if port > 0 {
			s.port = port
		}
	}
}

// WithClock overrides the clock used for derived crawler status.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a new HTTP server.
func New(st store.Store, digests *digest.Store, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		store:   st,
		digests: digests,
		port:    8080,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newHTTPMetrics(s.registry)
	return s
}

// Handler builds the router. API routes are registered on the root router
// so a method mismatch under /api reaches the 405 handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := func(path string, h http.HandlerFunc, method string) {
		r.Handle("/api"+path, s.rateLimit(h)).Methods(method)
	}
	api("/stats", s.handleStats, http.MethodGet)
	api("/twitter", s.handleTwitter, http.MethodGet)
	api("/reddit", s.handleReddit, http.MethodGet)
	api("/news", s.handleNews, http.MethodGet)
	api("/crypto", s.handleCrypto, http.MethodGet)
	api("/dex", s.handleDex, http.MethodGet)
	api("/crawlers", s.handleCrawlers, http.MethodGet)
	api("/digests", s.handleDigests, http.MethodGet)
	api("/digests/latest", s.handleLatestDigest, http.MethodGet)
	api("/digests/current", s.handleCurrentDigest, http.MethodGet)
	api("/digests/{date}", s.handleDigest, http.MethodGet)
	api("/refresh", s.handleRefresh, http.MethodPost)

	if s.staticDir != "" {
		r.PathPrefix("/").Handler(staticPages(s.staticDir)).Methods(http.MethodGet, http.MethodHead)
	}

	return s.instrument(r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
