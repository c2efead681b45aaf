package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/heuristics"
	"github.com/maher4real/support-ticket-system/internal/queue"
	"github.com/maher4real/support-ticket-system/internal/transport"
	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

// QueuedMessage is shown when a ticket was saved locally instead of
// reaching the ticket service.
const QueuedMessage = "Saved on this device. It will be submitted automatically once the server is reachable."

// TicketGateway is the part of the ticket service used by the write path.
type TicketGateway interface {
	CreateTicket(ctx context.Context, payload domain.TicketPayload) (*domain.Ticket, error)
	Classify(ctx context.Context, description string) (*domain.Classification, error)
	SuggestTitle(ctx context.Context, description string) (string, error)
}

// Enqueuer holds tickets that could not be submitted.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload domain.TicketPayload) (*domain.QueuedTicket, error)
}

// TicketService coordinates ticket creation and AI suggestions.
type TicketService struct {
	api        TicketGateway
	queue      Enqueuer
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	API        TicketGateway
	Queue      Enqueuer
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

// CreateResult is the outcome of a creation request. Queued results
// carry a local-only display ticket.
type CreateResult struct {
	Ticket  domain.DisplayTicket `json:"ticket"`
	Queued  bool                 `json:"queued"`
	Message string               `json:"message,omitempty"`
}

// ClassifyResult is a category/priority suggestion with its origin and
// a local tone estimate.
type ClassifyResult struct {
	domain.Classification
	Source   string                  `json:"source"`
	Estimate domain.SentimentUrgency `json:"estimate"`
}

// TitleSuggestion is a suggested title with its origin.
type TitleSuggestion struct {
	SuggestedTitle string `json:"suggested_title"`
	Source         string `json:"source"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		api:        deps.API,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateTicket submits the ticket. When the ticket service is unreachable
// the ticket is queued locally and reported as created; only a rejection
// by the service is returned as an error.
func (s *TicketService) CreateTicket(ctx context.Context, payload domain.TicketPayload) (*CreateResult, error) {
	payload.Normalize()
	if problems := payload.Validate(); problems != nil {
		return nil, apperrors.NewValidationError("invalid ticket", problems)
	}

	ticket, err := s.api.CreateTicket(ctx, payload)
	if err == nil {
		s.publishEvent(ctx, events.EventTicketCreated, events.TicketCreatedPayload{
			TicketID: ticket.ID,
			Priority: ticket.Priority,
			Title:    ticket.Title,
		})
		return &CreateResult{Ticket: domain.FromRemote(*ticket)}, nil
	}

	if transport.IsPermanent(err) {
		var te *transport.Error
		details := map[string]any{}
		if errors.As(err, &te) && te.StatusCode > 0 {
			details["upstream_status"] = te.StatusCode
		}
		return nil, apperrors.NewValidationError(transport.MessageOf(err), details)
	}

	// the request may outlive the caller, the queue write must not
	wctx, cancel := queue.Detached(ctx)
	defer cancel()
	item, qerr := s.queue.Enqueue(wctx, payload)
	if qerr != nil {
		s.logger.Error("failed to queue ticket locally", zap.Error(qerr), zap.NamedError("submit_error", err))
		return nil, apperrors.NewInternalError(qerr)
	}

	s.logger.Info("ticket service unreachable, ticket queued",
		zap.String("queue_id", item.QueueID),
		zap.Bool("timeout", transport.IsTimeout(err)))
	s.publishEvent(wctx, events.EventTicketQueued, events.TicketQueuedPayload{
		QueueID: item.QueueID,
		Title:   item.Payload.Title,
		Reason:  transport.MessageOf(err),
	})
	return &CreateResult{Ticket: item.Display(), Queued: true, Message: QueuedMessage}, nil
}

// Classify suggests a category and priority, falling back to the local
// scorer when the AI service fails or answers outside the known values.
func (s *TicketService) Classify(ctx context.Context, description string) (*ClassifyResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", map[string]any{"description": "This field may not be blank."})
	}

	estimate := heuristics.ScoreSentimentUrgency(description)
	suggestion, err := s.api.Classify(ctx, description)
	if err == nil && suggestion != nil && suggestion.Valid() {
		return &ClassifyResult{Classification: *suggestion, Source: domain.SourceRemote, Estimate: estimate}, nil
	}
	if err != nil {
		s.logger.Debug("classification fell back to local heuristics", zap.Error(err))
	} else {
		s.logger.Debug("classification fell back to local heuristics: unusable suggestion")
	}
	return &ClassifyResult{Classification: heuristics.Classify(description), Source: domain.SourceLocal, Estimate: estimate}, nil
}

// SuggestTitle proposes a title, falling back to the first sentence of
// the description.
func (s *TicketService) SuggestTitle(ctx context.Context, description string) (*TitleSuggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", map[string]any{"description": "This field may not be blank."})
	}

	title, err := s.api.SuggestTitle(ctx, description)
	if err == nil {
		if normalized := heuristics.NormalizeTitle(title); normalized != "" {
			return &TitleSuggestion{SuggestedTitle: normalized, Source: domain.SourceRemote}, nil
		}
	} else {
		s.logger.Debug("title suggestion fell back to local heuristics", zap.Error(err))
	}
	return &TitleSuggestion{SuggestedTitle: heuristics.SuggestTitle(description), Source: domain.SourceLocal}, nil
}

func (s *TicketService) publishEvent(ctx context.Context, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, s.clock.Now(), payload))
}
