package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Config is the top-level filterlog server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	AccessLog AccessLogConfig `yaml:"access_log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Store     StoreConfig     `yaml:"store"`
	Backends  []BackendConfig `yaml:"backends"`
}

// ServerConfig configures the HTTP listener that serves the filter routes.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyRaw      string        `yaml:"max_body"`
	MaxBody         int64         `yaml:"-"`
}

// LogConfig configures the process-wide slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// AccessLogConfig configures the default access-log observer.
type AccessLogConfig struct {
	Enabled *bool  `yaml:"enabled"` // default true
	Name    string `yaml:"name"`    // slog target attribute
}

// AccessLogEnabled returns whether access lines should be written.
func (a AccessLogConfig) AccessLogEnabled() bool {
	if a.Enabled == nil {
		return true
	}
	return *a.Enabled
}

// MetricsConfig configures the Prometheus metrics and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // pointer to distinguish unset from false; default true
	Addr    string `yaml:"addr"`    // listen address; default ":9090"
}

// MetricsEnabled returns whether the metrics server should run.
func (m MetricsConfig) MetricsEnabled() bool {
	if m.Enabled == nil {
		return true // default: enabled
	}
	return *m.Enabled
}

// TracingConfig configures OpenTelemetry span recording.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"` // OTLP gRPC collector; empty records spans without exporting
	Insecure    bool   `yaml:"insecure"`
}

// StoreConfig configures the key/value store. An empty path keeps the store
// in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig describes a single object backend served under /files.
type BackendConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Root   string            `yaml:"root"`
	Config map[string]string `yaml:"config"`
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Server.MaxBody < 0 {
		return fmt.Errorf("config: server.max_body must be positive, got %d", c.Server.MaxBody)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("config: server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Server.Addr != "" && c.Metrics.MetricsEnabled() && c.Server.Addr == c.Metrics.Addr {
		return fmt.Errorf("config: server.addr and metrics.addr both set to %q", c.Server.Addr)
	}
	names := make(map[string]bool)
	for _, be := range c.Backends {
		if be.Name == "" {
			return fmt.Errorf("config: backend name cannot be empty")
		}
		if strings.Contains(be.Name, "/") {
			return fmt.Errorf("config: backend name %q cannot contain '/'", be.Name)
		}
		if be.Type == "" {
			return fmt.Errorf("config: backend %q has empty type", be.Name)
		}
		if names[be.Name] {
			return fmt.Errorf("config: duplicate backend name %q", be.Name)
		}
		names[be.Name] = true
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. An empty name is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log.level %q", s)
}

// NewLogger builds the slog logger described by l, writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
