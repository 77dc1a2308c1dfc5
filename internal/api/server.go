package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ffexec/internal/history"
	"ffexec/internal/logging"
	"ffexec/internal/metrics"
	"ffexec/internal/transcode"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options configures a Server. History and Metrics may be nil.
type Options struct {
	Addr          string
	Adapter       *transcode.Adapter
	History       *history.Store
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	CORSOrigins   []string
	MaxInputBytes int64
}

// Server wraps the chi router and the adapter it fronts.
type Server struct {
	router   *chi.Mux
	adapter  *transcode.Adapter
	history  *history.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	addr     string
	maxInput int64
}

// NewServer creates and configures a new HTTP server.
func NewServer(opts Options) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		adapter:  opts.Adapter,
		history:  opts.History,
		metrics:  opts.Metrics,
		logger:   logging.NewComponentLogger(opts.Logger, "api"),
		addr:     opts.Addr,
		maxInput: opts.MaxInputBytes,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	if srv.metrics != nil {
		srv.router.Use(srv.metrics.Middleware)
	}
	if len(opts.CORSOrigins) > 0 {
		srv.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", headerJobID, headerDurationMS},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/transcode", s.handleTranscode)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve accepts connections on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", logging.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// loggingMiddleware logs each request and carries the chi request id into
// the context so adapter logs share it.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context())))

		next.ServeHTTP(ww, r)

		logging.WithContext(r.Context(), s.logger).Info("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}
