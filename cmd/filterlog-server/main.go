package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/warpdrive/filterlog/pkg/backend"
	"github.com/warpdrive/filterlog/pkg/config"
	"github.com/warpdrive/filterlog/pkg/control"
	"github.com/warpdrive/filterlog/pkg/kv"
	"github.com/warpdrive/filterlog/pkg/metrics"
	"github.com/warpdrive/filterlog/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults apply when empty)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		slog.Error("invalid log config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// ── KV store ──────────────────────────────────────────────────
	store, err := kv.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open kv store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// ── Backends ──────────────────────────────────────────────────
	reg := backend.NewRegistry()
	for _, bcfg := range cfg.Backends {
		be, err := backend.NewRcloneBackend(bcfg.Name, bcfg.Type, bcfg.Root, bcfg.Config)
		if err != nil {
			slog.Error("failed to create backend", "name", bcfg.Name, "type", bcfg.Type, "error", err)
			os.Exit(1)
		}
		if err := reg.Register(be); err != nil {
			slog.Error("failed to register backend", "name", bcfg.Name, "error", err)
			os.Exit(1)
		}
		slog.Info("registered backend", "name", bcfg.Name, "type", bcfg.Type)
	}
	defer reg.Close()

	// ── Tracing ───────────────────────────────────────────────────
	var tracer trace.Tracer
	if cfg.Tracing.Enabled {
		tp, err := tracing.NewProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		tracing.Install(tp)
		tracer = tp.Tracer(cfg.Tracing.ServiceName)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Warn("tracer provider shutdown failed", "error", err)
			}
		}()
		slog.Info("tracing enabled", "service", cfg.Tracing.ServiceName, "endpoint", cfg.Tracing.Endpoint)
	}

	// ── Metrics + Health Server ──────────────────────────────────
	metrics.RegisterHealthCheck("kv_store", store.Ping)

	metricsStop := make(chan struct{})
	if cfg.Metrics.MetricsEnabled() {
		go func() {
			if err := metrics.MetricsServer(cfg.Metrics.Addr, metricsStop); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.Metrics.Addr)
	} else {
		slog.Info("metrics server disabled")
	}
	defer close(metricsStop)

	// ── API Server ────────────────────────────────────────────────
	srv := control.NewServer(control.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBody:         cfg.Server.MaxBody,
	}, store, reg, control.Observers(accessLogName(cfg), tracer))

	slog.Info("starting filterlog server", "addr", cfg.Server.Addr, "backends", len(cfg.Backends))
	if err := srv.Run(ctx); err != nil {
		slog.Error("api server error", "error", err)
		os.Exit(1)
	}
	slog.Info("filterlog server stopped cleanly")
}

func accessLogName(cfg *config.Config) string {
	if !cfg.AccessLog.AccessLogEnabled() {
		return ""
	}
	return cfg.AccessLog.Name
}
