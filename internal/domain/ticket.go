package domain

import (
	"strings"
	"time"
)

// TicketCategory enumerates the routing buckets for tickets.
type TicketCategory string

const (
	TicketCategoryBilling   TicketCategory = "billing"
	TicketCategoryTechnical TicketCategory = "technical"
	TicketCategoryAccount   TicketCategory = "account"
	TicketCategoryGeneral   TicketCategory = "general"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketSentiment enumerates the tone detected in a ticket.
type TicketSentiment string

const (
	TicketSentimentCalm       TicketSentiment = "calm"
	TicketSentimentNeutral    TicketSentiment = "neutral"
	TicketSentimentFrustrated TicketSentiment = "frustrated"
	TicketSentimentAngry      TicketSentiment = "angry"
)

// MaxTitleLength mirrors the remote service validation.
const MaxTitleLength = 200

var (
	Categories = []TicketCategory{TicketCategoryBilling, TicketCategoryTechnical, TicketCategoryAccount, TicketCategoryGeneral}
	Priorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical}
	Statuses   = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}
	Sentiments = []TicketSentiment{TicketSentimentCalm, TicketSentimentNeutral, TicketSentimentFrustrated, TicketSentimentAngry}
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known sentiment.
func (s TicketSentiment) Valid() bool {
	for _, known := range Sentiments {
		if s == known {
			return true
		}
	}
	return false
}

// Ticket is the remote-authoritative support request. The client only
// ever holds a read-only copy fetched from the ticket service.
type Ticket struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     TicketCategory  `json:"category"`
	Priority     TicketPriority  `json:"priority"`
	Status       TicketStatus    `json:"status"`
	Sentiment    TicketSentiment `json:"sentiment"`
	UrgencyScore int             `json:"urgency_score"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TicketPayload is the body of a ticket creation request.
type TicketPayload struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    TicketCategory `json:"category"`
	Priority    TicketPriority `json:"priority"`
}

// Normalize trims free-text fields in place.
func (p *TicketPayload) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
}

// Validate returns field level messages keyed by field name, or nil.
func (p TicketPayload) Validate() map[string]any {
	problems := map[string]any{}
	title := strings.TrimSpace(p.Title)
	switch {
	case title == "":
		problems["title"] = "Title is required."
	case len([]rune(title)) > MaxTitleLength:
		problems["title"] = "Title must be 200 characters or fewer."
	}
	if strings.TrimSpace(p.Description) == "" {
		problems["description"] = "Description is required."
	}
	if !p.Category.Valid() {
		problems["category"] = "Category must be one of billing, technical, account, general."
	}
	if !p.Priority.Valid() {
		problems["priority"] = "Priority must be one of low, medium, high, critical."
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// TicketPatch is a partial update accepted by the ticket service.
type TicketPatch struct {
	Status   *TicketStatus   `json:"status,omitempty"`
	Priority *TicketPriority `json:"priority,omitempty"`
	Category *TicketCategory `json:"category,omitempty"`
}
