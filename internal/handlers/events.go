package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/scheduler"
)

// ProviderLister exposes the currently routable provider names
type ProviderLister func() []string

// EventsHandler handles event ingestion and status queries
type EventsHandler struct {
	scheduler *scheduler.Scheduler
	providers ProviderLister
}

// NewEventsHandler creates an events handler
func NewEventsHandler(sched *scheduler.Scheduler, providers ProviderLister) *EventsHandler {
	return &EventsHandler{scheduler: sched, providers: providers}
}

// Ingest accepts an inbound event and queues it for processing
func (h *EventsHandler) Ingest(c *fiber.Ctx) error {
	var req models.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Source == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source and type are required",
		})
	}

	event := &models.Event{
		ID:        req.ID,
		Type:      req.Type,
		Source:    req.Source,
		Priority:  req.Priority,
		Timestamp: time.Now(),
		Data:      req.Data,
		Context:   req.Context,
	}

	if _, err := h.scheduler.QueueEvent(event); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateEvent) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "event id already queued",
				"id":    event.ID,
			})
		}
		if errors.Is(err, scheduler.ErrShutdown) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "orchestrator is shutting down",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(models.IngestResponse{
		ID:     event.ID,
		Status: "queued",
	})
}

// Get returns the current status of one event by id
func (h *EventsHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	event, found := h.scheduler.Get(id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "event not found",
			"id":    id,
		})
	}

	return c.JSON(event)
}

// Status returns queue depths, history size and available providers
func (h *EventsHandler) Status(c *fiber.Ctx) error {
	status := h.scheduler.Status()
	if h.providers != nil {
		status.AvailableProviders = h.providers()
	}
	return c.JSON(status)
}
