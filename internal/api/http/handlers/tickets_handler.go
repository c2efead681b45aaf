package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/maher4real/support-ticket-system/internal/api/dto"
	"github.com/maher4real/support-ticket-system/internal/service"
	"github.com/maher4real/support-ticket-system/internal/view"
	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

// QueueCounter reports how many tickets wait in the local queue.
type QueueCounter interface {
	Len(ctx context.Context) (int, error)
}

// TicketsHandler serves the ticket list, ticket writes, stats and the AI
// helpers.
type TicketsHandler struct {
	service *service.TicketService
	view    *view.Coordinator
	queue   QueueCounter
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, coordinator *view.Coordinator, queue QueueCounter) *TicketsHandler {
	return &TicketsHandler{service: ticketService, view: coordinator, queue: queue}
}

// ListTickets GET /tickets. Changing a filter reloads the list; read
// failures are reported through the state, not as an error status.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	var query dto.TicketListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	ctx := c.UserContext()
	filter := query.Filter()

	var err error
	switch {
	case filter != h.view.Filters():
		err = h.view.SetFilters(ctx, filter)
	case query.Refresh || h.view.State(view.ScopeTickets).Phase == view.PhaseIdle:
		err = h.view.LoadTickets(ctx)
	}
	if surfaced(err) {
		return err
	}

	items, err := h.view.DisplayTickets(ctx)
	if err != nil {
		return err
	}
	snapshot := h.view.Snapshot()
	return c.JSON(fiber.Map{
		"data":    items,
		"filters": snapshot.Filters,
		"state":   snapshot.Tickets,
	})
}

// CreateTicket POST /tickets. Tickets saved to the local queue answer 202.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.CreateTicket(c.UserContext(), req.Payload())
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Queued {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(dto.CreateTicketResponse{
		Data:    result.Ticket,
		Queued:  result.Queued,
		Message: result.Message,
	})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.view.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Stats GET /stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if c.QueryBool("refresh") || h.view.State(view.ScopeStats).Phase == view.PhaseIdle {
		if err := h.view.LoadStats(ctx); surfaced(err) {
			return err
		}
	}
	queued, err := h.queue.Len(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":   h.view.Stats(),
		"state":  h.view.State(view.ScopeStats),
		"queued": queued,
	})
}

// Classify POST /tickets/classify.
func (h *TicketsHandler) Classify(c *fiber.Ctx) error {
	var req dto.DescriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Classify(c.UserContext(), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// SuggestTitle POST /tickets/suggest-title.
func (h *TicketsHandler) SuggestTitle(c *fiber.Ctx) error {
	var req dto.DescriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.SuggestTitle(c.UserContext(), strings.TrimSpace(req.Description))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// surfaced reports whether a view error should fail the request. Remote
// read failures already live in the read state.
func surfaced(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *apperrors.DomainError
	return errors.As(err, &domainErr) || errors.Is(err, view.ErrClosed)
}
