package domain

// Stats is the aggregate dashboard payload returned by the ticket service.
type Stats struct {
	TotalTickets       int                     `json:"total_tickets"`
	OpenTickets        int                     `json:"open_tickets"`
	AvgTicketsPerDay   float64                 `json:"avg_tickets_per_day"`
	PriorityBreakdown  map[TicketPriority]int  `json:"priority_breakdown"`
	CategoryBreakdown  map[TicketCategory]int  `json:"category_breakdown"`
	SentimentBreakdown map[TicketSentiment]int `json:"sentiment_breakdown,omitempty"`
	AvgUrgencyScore    *float64                `json:"avg_urgency_score,omitempty"`
}

// Classification is a category/priority suggestion.
type Classification struct {
	SuggestedCategory TicketCategory `json:"suggested_category"`
	SuggestedPriority TicketPriority `json:"suggested_priority"`
}

// Valid reports whether both suggestions are known enum values.
func (c Classification) Valid() bool {
	return c.SuggestedCategory.Valid() && c.SuggestedPriority.Valid()
}

// SentimentUrgency is the tone/urgency estimate for a ticket.
type SentimentUrgency struct {
	Sentiment    TicketSentiment `json:"sentiment"`
	UrgencyScore int             `json:"urgency_score"`
}

// Suggestion source markers.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)
