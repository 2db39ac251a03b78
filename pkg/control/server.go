package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/warpdrive/filterlog/pkg/accesslog"
	"github.com/warpdrive/filterlog/pkg/backend"
	"github.com/warpdrive/filterlog/pkg/kv"
	"github.com/warpdrive/filterlog/pkg/metrics"
	"github.com/warpdrive/filterlog/pkg/tracing"
)

// Config configures the API server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxBody         int64 // request body limit for PUT; <= 0 disables
}

// ObserverFunc builds the access observer for one route target.
type ObserverFunc func(target string) accesslog.Observer

// Observers returns the standard observer chain: one access line per request
// under logName (skipped when empty), Prometheus request metrics per target
// and, with a non-nil tracer, one span per request.
func Observers(logName string, tracer trace.Tracer) ObserverFunc {
	var line accesslog.Observer
	if logName != "" {
		line = accesslog.Default(logName)
	}
	return func(target string) accesslog.Observer {
		obs := []accesslog.Observer{line, metrics.Observer(target)}
		if tracer != nil {
			obs = append(obs, tracing.Observer(tracer, target))
		}
		return accesslog.Multi(obs...)
	}
}

// Server serves the KV and file routes. Every route is wrapped by an
// access-log decorator built from the server's ObserverFunc.
type Server struct {
	store    *kv.Store
	backends *backend.Registry
	cfg      Config
	observe  ObserverFunc
	httpSrv  *http.Server
}

// NewServer creates an API server. A nil observe disables instrumentation.
func NewServer(cfg Config, store *kv.Store, backends *backend.Registry, observe ObserverFunc) *Server {
	if backends == nil {
		backends = backend.NewRegistry()
	}
	return &Server{
		store:    store,
		backends: backends,
		cfg:      cfg,
		observe:  observe,
	}
}

// decorator returns the access-log decorator for a route target.
func (s *Server) decorator(target string) accesslog.Decorator {
	if s.observe == nil {
		return accesslog.Decorator{}
	}
	return accesslog.Custom(s.observe(target))
}

// Handler returns the routed HTTP handler. Incoming trace context is
// extracted before routing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterAPIRoutes(mux)
	return tracing.Extract(mux)
}

// Run starts the HTTP server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "component", "control", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("api server shutting down", "component", "control")
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// SetAddr overrides the listen address.
func (s *Server) SetAddr(addr string) {
	s.cfg.Addr = addr
}
