package dto

import (
	"strings"

	"github.com/gofiber/fiber/v2/utils"

	"github.com/maher4real/support-ticket-system/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// Payload converts the request into a ticket payload.
func (r CreateTicketRequest) Payload() domain.TicketPayload {
	return domain.TicketPayload{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
	}
}

// UpdateTicketRequest payload for PATCH /tickets/:id.
type UpdateTicketRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// DescriptionRequest is the body of the AI helper endpoints.
type DescriptionRequest struct {
	Description string `json:"description"`
}

// TicketListQuery captures query filters for GET /tickets.
type TicketListQuery struct {
	Category string `query:"category"`
	Priority string `query:"priority"`
	Status   string `query:"status"`
	Search   string `query:"search"`
	Refresh  bool   `query:"refresh"`
}

// Filter converts the query into a ticket filter. The values are copied
// because the view keeps the filter after the request buffer is reused.
func (q TicketListQuery) Filter() domain.TicketFilter {
	return domain.TicketFilter{
		Category: domain.TicketCategory(ownedTrim(q.Category)),
		Priority: domain.TicketPriority(ownedTrim(q.Priority)),
		Status:   domain.TicketStatus(ownedTrim(q.Status)),
		Search:   ownedTrim(q.Search),
	}
}

func ownedTrim(s string) string {
	return utils.CopyString(strings.TrimSpace(s))
}

// CreateTicketResponse wraps the created or queued ticket.
type CreateTicketResponse struct {
	Data    domain.DisplayTicket `json:"data"`
	Queued  bool                 `json:"queued"`
	Message string               `json:"message,omitempty"`
}
