package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/oms/backend/internal/infrastructure/gateway"
	"github.com/oms/backend/internal/infrastructure/telemetry"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping() error
}

// HealthHandler exposes liveness and the per-provider resilience state.
type HealthHandler struct {
	BaseHandler
	gw      *gateway.Gateway
	db      Pinger
	metrics *telemetry.IntegrationMetrics
}

// NewHealthHandler creates a HealthHandler. db and metrics may be nil.
func NewHealthHandler(gw *gateway.Gateway, db Pinger, metrics *telemetry.IntegrationMetrics) *HealthHandler {
	return &HealthHandler{gw: gw, db: db, metrics: metrics}
}

// RegisterRoutes registers the health routes.
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("", h.Liveness)
		health.GET("/providers", h.Providers)
	}
}

// Liveness reports process and database health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			h.Success(c, status)
			return
		}
		status["database"] = "ok"
	}
	h.Success(c, status)
}

// Providers reports breaker state and limiter occupancy per provider. The
// snapshot also feeds the resilience gauges, so scraping this endpoint keeps
// them current.
func (h *HealthHandler) Providers(c *gin.Context) {
	snapshot := h.gw.Health()
	ctx := c.Request.Context()
	for _, p := range snapshot {
		h.metrics.ObserveBreaker(ctx, p.Provider, string(p.BreakerState))
		h.metrics.ObserveLimiterQueue(ctx, p.Provider, p.QueueLength)
	}
	h.Success(c, snapshot)
}
