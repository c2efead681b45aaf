package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity reports the network signal.
type Connectivity interface {
	Online() bool
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName  string
	version      string
	queueStore   Pinger
	connectivity Connectivity
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, queueStore Pinger, connectivity Connectivity) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, queueStore: queueStore, connectivity: connectivity}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports readiness. Only the local queue store gates readiness;
// losing the ticket service is the normal offline mode.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if err := h.queueStore.Ping(ctx); err != nil {
		depStatus["queue_store"] = err.Error()
		ready = false
	} else {
		depStatus["queue_store"] = "ok"
	}

	online := true
	if h.connectivity != nil {
		online = h.connectivity.Online()
	}
	if online {
		depStatus["ticket_service"] = "online"
	} else {
		depStatus["ticket_service"] = "offline"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"online":       online,
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "local queue store unavailable",
			"details": depStatus,
		},
	})
}
