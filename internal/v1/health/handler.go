// Package health serves the liveness and readiness probes exposed on the
// ops listener.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/incognita-games/lobbyd/internal/v1/bus"
	"github.com/incognita-games/lobbyd/internal/v1/logging"
)

// DispatcherChecker reports whether the lobby event loop is consuming
// events. The transport dispatcher satisfies it.
type DispatcherChecker interface {
	Running() bool
}

// Handler manages health check endpoints
type Handler struct {
	busService *bus.Service
	dispatcher DispatcherChecker
	startedAt  time.Time
}

// NewHandler creates a new health check handler
func NewHandler(busService *bus.Service, dispatcher DispatcherChecker) *Handler {
	return &Handler{
		busService: busService,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if the dispatcher is consuming events and, when the
// bus is enabled, Redis answers a ping. Returns 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	dispatcherStatus := h.checkDispatcher()
	checks["dispatcher"] = dispatcherStatus
	if dispatcherStatus != "healthy" {
		allHealthy = false
	}

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkDispatcher verifies the event loop was started and has not exited.
func (h *Handler) checkDispatcher() string {
	if h.dispatcher == nil || !h.dispatcher.Running() {
		return "unhealthy"
	}
	return "healthy"
}

// checkRedis verifies Redis connectivity using PING command
func (h *Handler) checkRedis(ctx context.Context) string {
	// Single-instance mode runs without Redis; nothing to check.
	if h.busService == nil {
		return "healthy"
	}

	if err := h.busService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
