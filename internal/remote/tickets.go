// Package remote exposes the ticket service and its AI helpers as typed
// operations over the transport layer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/transport"
)

// Paths served by the ticket service.
const (
	ticketsPath      = "/api/tickets/"
	statsPath        = "/api/tickets/stats/"
	classifyPath     = "/api/tickets/classify/"
	suggestTitlePath = "/api/tickets/suggest-title/"
)

// Operation names used in logs and metrics.
const (
	OpCreateTicket = "create_ticket"
	OpListTickets  = "list_tickets"
	OpUpdateTicket = "update_ticket"
	OpGetStats     = "get_stats"
	OpClassify     = "classify"
	OpSuggestTitle = "suggest_title"
	OpPing         = "ping"
)

// Timeouts bounds each kind of call.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	AI    time.Duration
}

// DefaultTimeouts returns the per-attempt timeouts used when none are set.
func DefaultTimeouts() Timeouts {
	return Timeouts{Read: 8 * time.Second, Write: 10 * time.Second, AI: 4 * time.Second}
}

// TicketAPI is the ticket service as seen by the client.
type TicketAPI interface {
	CreateTicket(ctx context.Context, payload domain.TicketPayload) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
	UpdateTicket(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error)
	GetStats(ctx context.Context) (*domain.Stats, error)
	Classify(ctx context.Context, description string) (*domain.Classification, error)
	SuggestTitle(ctx context.Context, description string) (string, error)
	Ping(ctx context.Context) error
}

type ticketAPI struct {
	client   *transport.Client
	timeouts Timeouts
}

// NewTicketAPI creates the ticket service client.
func NewTicketAPI(client *transport.Client, timeouts Timeouts) TicketAPI {
	defaults := DefaultTimeouts()
	if timeouts.Read <= 0 {
		timeouts.Read = defaults.Read
	}
	if timeouts.Write <= 0 {
		timeouts.Write = defaults.Write
	}
	if timeouts.AI <= 0 {
		timeouts.AI = defaults.AI
	}
	return &ticketAPI{client: client, timeouts: timeouts}
}

func (a *ticketAPI) CreateTicket(ctx context.Context, payload domain.TicketPayload) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := a.client.Do(ctx, transport.Request{
		Op:      OpCreateTicket,
		Method:  http.MethodPost,
		Path:    ticketsPath,
		Body:    payload,
		Timeout: a.timeouts.Write,
	}, &ticket)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (a *ticketAPI) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	var raw json.RawMessage
	err := a.client.Do(ctx, transport.Request{
		Op:         OpListTickets,
		Method:     http.MethodGet,
		Path:       ticketsPath,
		Query:      filterQuery(filter),
		Idempotent: true,
		Timeout:    a.timeouts.Read,
	}, &raw)
	if err != nil {
		return nil, err
	}
	tickets, err := decodeTicketList(raw)
	if err != nil {
		return nil, &transport.Error{Op: OpListTickets, Outcome: transport.OutcomePermanent, Message: "Unexpected response from server.", Err: err}
	}
	return tickets, nil
}

func (a *ticketAPI) UpdateTicket(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := a.client.Do(ctx, transport.Request{
		Op:      OpUpdateTicket,
		Method:  http.MethodPatch,
		Path:    fmt.Sprintf("%s%d/", ticketsPath, id),
		Body:    patch,
		Timeout: a.timeouts.Write,
	}, &ticket)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (a *ticketAPI) GetStats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats
	err := a.client.Do(ctx, transport.Request{
		Op:         OpGetStats,
		Method:     http.MethodGet,
		Path:       statsPath,
		Idempotent: true,
		Timeout:    a.timeouts.Read,
	}, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

type describeRequest struct {
	Description string `json:"description"`
}

// Classify asks the AI service for a category and priority. The call
// has no side effects so it is retried like a read.
func (a *ticketAPI) Classify(ctx context.Context, description string) (*domain.Classification, error) {
	var out domain.Classification
	err := a.client.Do(ctx, transport.Request{
		Op:         OpClassify,
		Method:     http.MethodPost,
		Path:       classifyPath,
		Body:       describeRequest{Description: description},
		Idempotent: true,
		Timeout:    a.timeouts.AI,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ticketAPI) SuggestTitle(ctx context.Context, description string) (string, error) {
	var out struct {
		SuggestedTitle string `json:"suggested_title"`
	}
	err := a.client.Do(ctx, transport.Request{
		Op:         OpSuggestTitle,
		Method:     http.MethodPost,
		Path:       suggestTitlePath,
		Body:       describeRequest{Description: description},
		Idempotent: true,
		Timeout:    a.timeouts.AI,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.SuggestedTitle, nil
}

// Ping issues a single read against the stats endpoint. Any HTTP
// response means the service is reachable.
func (a *ticketAPI) Ping(ctx context.Context) error {
	err := a.client.Do(ctx, transport.Request{
		Op:      OpPing,
		Method:  http.MethodGet,
		Path:    statsPath,
		Timeout: a.timeouts.Read,
	}, nil)
	var te *transport.Error
	if errors.As(err, &te) && te.StatusCode > 0 {
		return nil
	}
	return err
}

func filterQuery(filter domain.TicketFilter) url.Values {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", string(filter.Category))
	}
	if filter.Priority != "" {
		q.Set("priority", string(filter.Priority))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q.Set("search", search)
	}
	return q
}

// decodeTicketList accepts a bare array or a paginated envelope.
func decodeTicketList(raw json.RawMessage) ([]domain.Ticket, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Ticket{}, nil
	}
	if raw[0] == '[' {
		var tickets []domain.Ticket
		if err := json.Unmarshal(raw, &tickets); err != nil {
			return nil, fmt.Errorf("decode ticket list: %w", err)
		}
		return tickets, nil
	}
	var page struct {
		Results []domain.Ticket `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode ticket page: %w", err)
	}
	if page.Results == nil {
		return []domain.Ticket{}, nil
	}
	return page.Results, nil
}
