package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mrrustybutter/orchestrator/internal/health"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	healthSvc *health.Service
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthSvc *health.Service) *HealthHandler {
	return &HealthHandler{healthSvc: healthSvc, startedAt: time.Now()}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"providers": h.healthSvc.Summary(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
