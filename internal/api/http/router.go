package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/maher4real/support-ticket-system/internal/api/http/handlers"
	"github.com/maher4real/support-ticket-system/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Queue   *handlers.QueueHandler
	Metrics *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Post("/classify", cfg.Tickets.Classify)
	tickets.Post("/suggest-title", cfg.Tickets.SuggestTitle)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	app.Get("/stats", cfg.Tickets.Stats)

	q := app.Group("/queue")
	q.Get("/", cfg.Queue.ListQueue)
	q.Get("/dead-letters", cfg.Queue.ListDeadLetters)
	q.Delete("/dead-letters/:id", cfg.Queue.DropDeadLetter)
	app.Post("/sync", cfg.Queue.Sync)
	app.Get("/notifications", cfg.Queue.Notifications)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
}
