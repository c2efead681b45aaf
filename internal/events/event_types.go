package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/maher4real/support-ticket-system/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketQueued        EventType = "ticket_queued"
	EventTicketUpdated       EventType = "ticket_updated"
	EventConnectivityChanged EventType = "connectivity_changed"
	EventQueueSynced         EventType = "queue_synced"
	EventQueueItemRejected   EventType = "queue_item_rejected"
)

// Event represents something that happened in the intake agent.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event of the given type.
func New(eventType EventType, at time.Time, payload any) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Timestamp: at, Payload: payload}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID int64                 `json:"ticket_id"`
	Priority domain.TicketPriority `json:"priority"`
	Title    string                `json:"title"`
}

// TicketQueuedPayload payload.
type TicketQueuedPayload struct {
	QueueID string `json:"queue_id"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	TicketID  int64               `json:"ticket_id"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// ConnectivityChangedPayload payload.
type ConnectivityChangedPayload struct {
	Online bool `json:"online"`
}

// QueueSyncedPayload payload.
type QueueSyncedPayload struct {
	Synced    int `json:"synced"`
	Remaining int `json:"remaining"`
}

// QueueItemRejectedPayload payload.
type QueueItemRejectedPayload struct {
	QueueID      string `json:"queue_id"`
	Reason       string `json:"reason"`
	DeadLettered bool   `json:"dead_lettered"`
}
