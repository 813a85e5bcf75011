// Package observability exposes gateway health over gRPC and HTTP.
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthChecker manages health checks for both gRPC and HTTP
type HealthChecker struct {
	grpcHealth *health.Server
	logger     *zap.Logger
	timeout    time.Duration

	mu     sync.RWMutex
	ready  bool
	checks map[string]Check
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		logger:     logger,
		timeout:    2 * time.Second,
		ready:      true,
		checks:     make(map[string]Check),
	}
}

// RegisterGRPC registers the health service with the gRPC server. Each
// service name is reported SERVING alongside the empty overall name.
func (h *HealthChecker) RegisterGRPC(s *grpc.Server, services ...string) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, name := range services {
		h.grpcHealth.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}
}

// AddCheck registers a named dependency check evaluated on every /healthz
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Register mounts /healthz on the router
func (h *HealthChecker) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
}

// Shutdown marks the gateway not ready so load balancers stop routing to it
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.ready = false
	h.mu.Unlock()
	h.grpcHealth.Shutdown()
	return ctx.Err()
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleHealthz writes 200 when every check passes and 503 otherwise
func (h *HealthChecker) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report := healthReport{Status: "OK", Checks: make(map[string]string, len(names))}
	if !ready {
		report.Status = "NOT_READY"
	}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			report.Checks[name] = err.Error()
			report.Status = "NOT_READY"
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		report.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Status != "OK" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(report)
}
