package handler

import (
	"net/http"
	"runtime"
	"time"

	"pricelens-gateway/internal/cache"
	"pricelens-gateway/internal/repository"
	"pricelens-gateway/internal/service"
	"pricelens-gateway/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	cache     cache.Cache
	audit     repository.AuditRepository
	auditType string // sqlite or postgres
	review    *service.ReviewService
	catalog   *service.CatalogService
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. audit may be nil.
func NewAdminHandler(
	c cache.Cache,
	audit repository.AuditRepository,
	auditType string,
	review *service.ReviewService,
	catalog *service.CatalogService,
) *AdminHandler {
	return &AdminHandler{
		cache:     c,
		audit:     audit,
		auditType: auditType,
		review:    review,
		catalog:   catalog,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	stats["cache"] = h.cache.Stats(ctx)

	if h.audit != nil {
		auditStats, err := h.audit.Stats(ctx)
		if err == nil {
			stats["audit_log"] = map[string]interface{}{
				"status":           "connected",
				"type":             h.auditType,
				"total":            auditStats.Total,
				"failed":           auditStats.Failed,
				"last_recorded_at": auditStats.LastRecordedAt,
				"size_bytes":       auditStats.SizeBytes,
			}
		} else {
			stats["audit_log"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["audit_log"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	stats["review"] = map[string]interface{}{
		"workspaces": h.review.Workspaces(),
	}
	stats["autocomplete"] = map[string]interface{}{
		"pending": h.catalog.PendingSuggestions(),
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
