// Package health exposes the Kubernetes-style liveness and readiness
// probes of the textroom server.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RoomCounter reports the number of rooms currently registered. The
// session hub implements it.
type RoomCounter interface {
	RoomCount(ctx context.Context) (int, error)
}

// Handler manages health check endpoints
type Handler struct {
	rooms RoomCounter
}

// NewHandler creates a new health check handler
func NewHandler(rooms RoomCounter) *Handler {
	return &Handler{rooms: rooms}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Rooms     int               `json:"rooms"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 when the room registry answers, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"registry": "healthy"}
	status := http.StatusOK

	count, err := h.rooms.RoomCount(ctx)
	if err != nil {
		checks["registry"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not ready"
	}

	c.JSON(status, ReadinessResponse{
		Status:    overall,
		Checks:    checks,
		Rooms:     count,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
