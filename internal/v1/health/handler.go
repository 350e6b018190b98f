// Package health serves the liveness and readiness probes on the ops
// HTTP listener.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
)

// Pinger checks a dependency. The database pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsReporter exposes live server counters for the readiness body.
type StatsReporter interface {
	ConnectionCount() int
	TokenCount() int
}

// Handler serves the probe endpoints.
type Handler struct {
	db    Pinger
	stats StatsReporter
}

// NewHandler wires the probes to their dependencies. Either argument
// may be nil; the corresponding check is skipped.
func NewHandler(db Pinger, stats StatsReporter) *Handler {
	return &Handler{db: db, stats: stats}
}

// LivenessResponse is the liveness probe body.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Connections int               `json:"connections"`
	Sessions    int               `json:"sessions"`
	Timestamp   string            `json:"timestamp"`
}

// Liveness handles GET /health/live. It answers 200 whenever the
// process is up; no dependencies are consulted.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. It answers 200 only while the
// database responds, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ready"
	statusCode := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logging.Error(ctx, "database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}

	resp := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.stats != nil {
		resp.Connections = h.stats.ConnectionCount()
		resp.Sessions = h.stats.TokenCount()
	}
	c.JSON(statusCode, resp)
}
