package domain

import (
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// QueuedTicket is a creation request held locally because the ticket
// service could not be reached when it was submitted.
type QueuedTicket struct {
	QueueID      string          `json:"queue_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Payload      TicketPayload   `json:"payload"`
	Sentiment    TicketSentiment `json:"sentiment"`
	UrgencyScore int             `json:"urgency_score"`
}

// DisplayTicket is the record handed to presentation code. LocalOnly
// marks tickets that exist only in the local queue.
type DisplayTicket struct {
	Ticket
	LocalOnly bool   `json:"local_only"`
	QueueID   string `json:"queue_id,omitempty"`
}

// SyntheticID derives the stand-in identity for a queued ticket. The
// result is always strictly negative so it cannot collide with ids
// assigned by the ticket service.
func SyntheticID(queueID string) int64 {
	h := xxhash.Sum64String(queueID) % uint64(math.MaxInt32)
	return -int64(h) - 1
}

// IsSyntheticID reports whether id belongs to a queued ticket.
func IsSyntheticID(id int64) bool {
	return id < 0
}

// FromRemote projects a remote ticket.
func FromRemote(t Ticket) DisplayTicket {
	return DisplayTicket{Ticket: t}
}

// Display projects the queued ticket into a ticket shaped record.
func (q QueuedTicket) Display() DisplayTicket {
	return DisplayTicket{
		Ticket: Ticket{
			ID:           SyntheticID(q.QueueID),
			Title:        q.Payload.Title,
			Description:  q.Payload.Description,
			Category:     q.Payload.Category,
			Priority:     q.Payload.Priority,
			Status:       TicketStatusOpen,
			Sentiment:    q.Sentiment,
			UrgencyScore: q.UrgencyScore,
			CreatedAt:    q.CreatedAt,
		},
		LocalOnly: true,
		QueueID:   q.QueueID,
	}
}

// DeadLetter is a queued ticket the ticket service permanently rejected.
type DeadLetter struct {
	QueuedTicket
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
