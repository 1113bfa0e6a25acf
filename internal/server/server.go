// Package server serves the interactive Final Document over HTTP.
//
// GET / renders the site tree on every request and injects it into the
// shell. Every other path is served from the static directory, which
// defaults to the build output. A render or template failure becomes a 500
// error page; the server keeps serving. In development the document carries
// a live-reload snippet and /ws accepts its websocket.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/isomorph/internal/config"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/livereload"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/metrics"
)

const (
	// LiveReloadPath is where the reload websocket is mounted.
	LiveReloadPath = "/ws"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the SSR HTTP server.
type Server struct {
	config   *config.Config
	pages    *RequestRenderer
	hub      *livereload.Hub
	recorder *metrics.Recorder
	logger   logging.Logger
	errors   *errors.ErrorHandler
	router   chi.Router

	mu           sync.Mutex
	httpServer   *http.Server
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRecorder sets the metrics recorder served on /metrics.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(s *Server) { s.recorder = rec }
}

// WithHub uses hub for live reload instead of creating one.
func WithHub(hub *livereload.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// New creates a Server rendering pages with cfg.
func New(cfg *config.Config, pages *RequestRenderer, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		pages:  pages,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	s.errors = errors.NewErrorHandler(s.logger)
	if s.hub == nil && cfg.LiveReloadEnabled() {
		s.hub = livereload.NewHub(
			livereload.WithOrigins(cfg.Server.AllowedOrigins...),
			livereload.WithLogger(s.logger),
		)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(SecurityMiddleware(SecurityConfigFor(s.config)))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.recorder.Handler())
	if s.config.LiveReloadEnabled() {
		r.Handle(LiveReloadPath, s.hub)
	}
	r.Handle("/*", http.FileServer(http.Dir(s.config.StaticRoot())))
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Reload tells connected browsers to reload. It is a no-op when live reload
// is off.
func (s *Server) Reload(reason string) int {
	if s.hub == nil || !s.config.LiveReloadEnabled() {
		return 0
	}
	return s.hub.Reload(reason)
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info(ctx, "Server listening",
		"addr", ln.Addr().String(),
		"environment", s.config.Server.Environment,
		"live_reload", s.config.LiveReloadEnabled())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

// Shutdown closes live-reload connections and stops the HTTP server. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		var errs []error
		if s.hub != nil {
			errs = append(errs, s.hub.Shutdown(ctx))
		}
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv != nil {
			errs = append(errs, srv.Shutdown(ctx))
		}
		s.shutdownErr = stderrors.Join(errs...)
	})
	return s.shutdownErr
}

// logRequests logs one line per request through the server logger.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
