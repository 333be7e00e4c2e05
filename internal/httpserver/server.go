package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/williamcotton/webdsl/pkg/logging"
	"github.com/williamcotton/webdsl/pkg/metrics"
)

// NewRouter wraps d in chi's standard middleware stack (request id, real
// client IP, structured recovery from panics, a request timeout), plus a
// structured-logging middleware emitting one "http request" log line per
// request and the fixed-size worker pool semaphore, and mounts it as the
// catch-all handler. Everything past that point is the dispatcher's own
// routing, not chi's route tree. workers <= 0 uses DefaultWorkerCount.
func NewRouter(d *Dispatcher, workers int) chi.Router {
	registry := metrics.Global()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(logging.NewHTTPMiddleware(d.Logger).Handler)
	r.Use(metrics.HTTPMiddleware(registry))
	r.Use(NewWorkerPool(workers).Middleware)
	registry.RegisterMetricsRoute(r)
	r.Handle("/*", d.Handler())
	return r
}

// Server wraps an http.Server with graceful shutdown. handler is
// typically the chi.Router from NewRouter, optionally wrapped in a
// shutdown.HTTPDrainer by the caller so in-flight requests can be tracked
// and waited on during graceful shutdown.
type Server struct {
	server *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(handler http.Handler, addr string) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Underlying returns the wrapped *http.Server, for callers that need to
// register it directly with a shutdown hook (e.g. hooks.HTTPServerShutdown).
func (s *Server) Underlying() *http.Server { return s.server }

// Start blocks serving HTTP requests until Shutdown is called.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits until in-flight
// requests have finished or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address.
func (s *Server) Addr() string { return s.server.Addr }
