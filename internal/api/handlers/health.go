package handlers

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthChecker is implemented by the database and Redis clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports the state of the service and its dependencies.
type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	cache     *cache.SnapshotCache
	version   string
	startTime time.Time
	memory    func() (*mem.VirtualMemoryStat, error)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// Status is healthy, degraded or unhealthy.
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime"`
	Memory    *MemoryUsage      `json:"memory,omitempty"`
	Cache     *CacheHealth      `json:"cache,omitempty"`
}

// MemoryUsage summarizes host memory.
type MemoryUsage struct {
	TotalMB     uint64  `json:"total_mb"`
	UsedMB      uint64  `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// CacheHealth reports snapshot cache traffic.
type CacheHealth struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
	TTL     string  `json:"ttl"`
}

// NewHealthHandler creates a health handler. Any dependency may be nil;
// a nil Redis client is reported as not configured.
func NewHealthHandler(db, redis HealthChecker, snapshotCache *cache.SnapshotCache, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		cache:     snapshotCache,
		version:   version,
		startTime: time.Now(),
		memory:    mem.VirtualMemory,
	}
}

// HealthCheck pings the source database and Redis. Only the database is
// critical: when it is down the handler answers 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	span := sentry.StartSpan(ctx, "health_check")
	defer span.Finish()
	ctx = span.Context()

	services := map[string]string{
		"database": checkService(ctx, h.db),
		"redis":    checkService(ctx, h.redis),
	}

	status := "healthy"
	code := http.StatusOK
	if services["redis"] != "healthy" && services["redis"] != "not configured" {
		status = "degraded"
	}
	if services["database"] != "healthy" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	span.SetTag("overall.status", status)

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.memory != nil {
		if vm, err := h.memory(); err == nil {
			resp.Memory = &MemoryUsage{
				TotalMB:     vm.Total / 1024 / 1024,
				UsedMB:      vm.Used / 1024 / 1024,
				UsedPercent: vm.UsedPercent,
			}
		}
	}
	if h.cache != nil {
		resp.Cache = &CacheHealth{Stats: h.cache.Stats(), HitRate: h.cache.HitRate(), TTL: h.cache.TTL().String()}
	}

	if code == http.StatusOK {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusUnavailable
	}
	c.JSON(code, resp)
}

// LivenessCheck only confirms that the process answers.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func checkService(ctx context.Context, checker HealthChecker) string {
	if isNil(checker) {
		return "not configured"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// isNil also catches typed nil pointers stored in the interface.
func isNil(checker HealthChecker) bool {
	if checker == nil {
		return true
	}
	v := reflect.ValueOf(checker)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
