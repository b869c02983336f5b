package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"pricelens-gateway/internal/cache"
	"pricelens-gateway/pkg/response"

	"golang.org/x/sync/errgroup"
)

// readyTimeout bounds each readiness probe.
const readyTimeout = 3 * time.Second

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and status probes.
type HealthHandler struct {
	service   string
	version   string
	cache     cache.Cache
	upstream  Pinger
	startTime time.Time
}

// NewHealthHandler creates a health handler. upstream may be nil.
func NewHealthHandler(service, version string, c cache.Cache, upstream Pinger) *HealthHandler {
	return &HealthHandler{
		service:   service,
		version:   version,
		cache:     c,
		upstream:  upstream,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready handles GET /api/v1/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := []Check{{Name: "api", Status: "ok"}, {Name: "cache"}, {Name: "upstream"}}

	var g errgroup.Group
	g.Go(func() error {
		checks[1] = probe("cache", func() error {
			_, err := h.cache.Exists(ctx, "ready:probe")
			return err
		})
		return nil
	})
	g.Go(func() error {
		if h.upstream == nil {
			checks[2] = Check{Name: "upstream", Status: "not_configured"}
			return nil
		}
		checks[2] = probe("upstream", func() error { return h.upstream.Ping(ctx) })
		return nil
	})
	_ = g.Wait()

	allReady := true
	for _, check := range checks {
		if check.Status == "error" {
			allReady = false
			break
		}
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func probe(name string, fn func() error) Check {
	if err := fn(); err != nil {
		return Check{Name: name, Status: "error", Error: err.Error()}
	}
	return Check{Name: name, Status: "ok"}
}

// StatusChecks represents the checks in status response.
type StatusChecks struct {
	Cache    string  `json:"cache"`
	MemoryMB float64 `json:"memory_mb"`
}

// StatusResponse represents the unified status response for uptime monitors.
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	PingMS        int64        `json:"ping_ms"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	requestStart := time.Now()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	cacheStatus := h.cache.Stats(r.Context()).Backend

	resp := StatusResponse{
		Service:       h.service,
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		PingMS:        time.Since(requestStart).Milliseconds(),
		Checks: StatusChecks{
			Cache:    cacheStatus,
			MemoryMB: float64(int(memoryMB*100)) / 100,
		},
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}
