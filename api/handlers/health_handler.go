package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// RunState reports whether the coordinator loop is running
type RunState interface {
	IsRunning() bool
	ActivePackage() string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	coordinator RunState
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(coordinator RunState) *HealthHandler {
	return &HealthHandler{
		coordinator: coordinator,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running bool   `json:"running"`
		Active  string `json:"active,omitempty"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Queue.Running = h.coordinator.IsRunning()
	response.Queue.Active = h.coordinator.ActivePackage()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.coordinator.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "download coordinator not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
