package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpdrive/filterlog/pkg/accesslog"
)

var (
	// Request metrics, one sample per observed invocation
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterlog_requests_total",
		Help: "Completed filter invocations by target, method and status",
	}, []string{"target", "method", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filterlog_request_duration_seconds",
		Help:    "Filter invocation latency",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
	}, []string{"target", "method", "status_class"})

	// Store metrics
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterlog_store_operations_total",
		Help: "Key/value store operations by type and result",
	}, []string{"operation", "result"})

	// Backend metrics
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filterlog_backend_request_duration_seconds",
		Help:    "Backend request duration",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
	}, []string{"backend", "operation"})

	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterlog_backend_errors_total",
		Help: "Backend errors by operation",
	}, []string{"backend", "operation"})

	BackendBytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterlog_backend_bytes_read_total",
		Help: "Total bytes read from backends",
	}, []string{"backend"})
)

func init() {
	// Pre-initialize Vec metrics so they appear in /metrics output before first use.
	StoreOperations.WithLabelValues("get", "ok")
	BackendRequestDuration.WithLabelValues("", "read")
	BackendErrors.WithLabelValues("", "read")
	BackendBytesRead.WithLabelValues("")
}

// Observer returns an access observer that records every invocation under
// the given target label.
func Observer(target string) accesslog.Observer {
	return func(info accesslog.Info) {
		elapsed := info.Elapsed()
		method := info.Method()
		Requests.WithLabelValues(target, method, strconv.Itoa(info.Status())).Inc()
		RequestDuration.WithLabelValues(target, method, StatusClass(info.Status())).Observe(elapsed.Seconds())
	}
}

// StatusClass buckets a status code as "2xx", "4xx", etc.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HealthCheck holds a single health check function.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthStatus represents the health response.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"`
}

type healthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

var defaultHealthChecker = &healthChecker{}

// RegisterHealthCheck adds a health check.
func RegisterHealthCheck(name string, check func() error) {
	defaultHealthChecker.mu.Lock()
	defer defaultHealthChecker.mu.Unlock()
	defaultHealthChecker.checks = append(defaultHealthChecker.checks, HealthCheck{
		Name:  name,
		Check: check,
	})
}

func runChecks() HealthStatus {
	defaultHealthChecker.mu.RLock()
	checks := make([]HealthCheck, len(defaultHealthChecker.checks))
	copy(checks, defaultHealthChecker.checks)
	defaultHealthChecker.mu.RUnlock()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	for _, hc := range checks {
		if err := hc.Check(); err != nil {
			status.Status = "degraded"
			status.Checks[hc.Name] = err.Error()
		} else {
			status.Checks[hc.Name] = "ok"
		}
	}
	return status
}

// HealthzHandler handles GET /healthz requests.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	status := runChecks()
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// MetricsServer starts an HTTP server for /metrics and /healthz on the given addr.
// It blocks until the provided stop channel is closed, then shuts down gracefully.
func MetricsServer(addr string, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", HealthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
