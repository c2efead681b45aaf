package domain

import (
	"sort"
	"strings"
)

// TicketFilter captures the active list filters. Empty fields match
// everything.
type TicketFilter struct {
	Category TicketCategory `json:"category,omitempty"`
	Priority TicketPriority `json:"priority,omitempty"`
	Status   TicketStatus   `json:"status,omitempty"`
	Search   string         `json:"search,omitempty"`
}

// Matches applies the filter to a display ticket. Remote and queued
// tickets go through the same predicate.
func (f TicketFilter) Matches(t DisplayTicket) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), search) ||
		strings.Contains(strings.ToLower(t.Description), search)
}

// MergeDisplay combines queued and remote tickets, applies the filter
// and orders the result newest first.
func MergeDisplay(remote []Ticket, queued []QueuedTicket, filter TicketFilter) []DisplayTicket {
	merged := make([]DisplayTicket, 0, len(remote)+len(queued))
	for _, q := range queued {
		if d := q.Display(); filter.Matches(d) {
			merged = append(merged, d)
		}
	}
	for _, t := range remote {
		if d := FromRemote(t); filter.Matches(d) {
			merged = append(merged, d)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})
	return merged
}
