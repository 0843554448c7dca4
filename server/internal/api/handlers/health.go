package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"swarmcp.io/server/internal/api/middleware"
)

// readinessTimeout bounds the store ping of the readiness probe.
const readinessTimeout = 2 * time.Second

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	store   Pinger
	version string
}

// NewHealthHandler creates a HealthHandler checking store on readiness.
func NewHealthHandler(store Pinger, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store,omitempty"`
}

// Liveness handles GET /health/live. It answers 200 while the process serves HTTP.
func (h *HealthHandler) Liveness(c *gin.Context) {
	respondSuccess(c, http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Readiness handles GET /health/ready. It answers 503 when the store is unreachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		middleware.GetLogger(c).Warn("readiness check failed", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "unhealthy", "Store unavailable")
		return
	}
	respondSuccess(c, http.StatusOK, HealthResponse{Status: "ready", Version: h.version, Store: "connected"})
}
