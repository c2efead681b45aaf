// Package view keeps the read side of the intake agent: the merged
// ticket list, dashboard stats, and the loading/retry state of each.
package view

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/transport"
	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

// ErrClosed is returned by loads issued after Close.
var ErrClosed = errors.New("view coordinator closed")

// TicketReader is the part of the ticket service the view reads from.
type TicketReader interface {
	ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
	GetStats(ctx context.Context) (*domain.Stats, error)
	UpdateTicket(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error)
}

// QueueLister lists tickets waiting in the local queue.
type QueueLister interface {
	List(ctx context.Context) ([]domain.QueuedTicket, error)
}

// Connectivity reports the network signal.
type Connectivity interface {
	Online() bool
}

type loader func(ctx context.Context, manual bool) error

type scopeState struct {
	state  ReadState
	latest uint64
	timer  clock.Timer
}

// Snapshot is a copy of the view state.
type Snapshot struct {
	Filters domain.TicketFilter `json:"filters"`
	Tickets ReadState           `json:"tickets"`
	Stats   ReadState           `json:"stats"`
}

// Coordinator owns the read state for one presentation session. Create
// it at startup and Close it at shutdown.
type Coordinator struct {
	api          TicketReader
	queue        QueueLister
	connectivity Connectivity
	dispatcher   events.Dispatcher
	clock        clock.Clock
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	filters domain.TicketFilter
	tickets []domain.Ticket
	stats   *domain.Stats
	scopes  map[Scope]*scopeState
	loaders map[Scope]loader
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock driving retry timers.
func WithClock(c clock.Clock) Option {
	return func(v *Coordinator) { v.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Coordinator) { v.logger = logger }
}

// WithDispatcher publishes ticket updates.
func WithDispatcher(d events.Dispatcher) Option {
	return func(v *Coordinator) { v.dispatcher = d }
}

// NewCoordinator creates a coordinator. Nothing is loaded until a Load
// or Refresh call.
func NewCoordinator(api TicketReader, q QueueLister, conn Connectivity, opts ...Option) *Coordinator {
	v := &Coordinator{
		api:          api,
		queue:        q,
		connectivity: conn,
		clock:        clock.Real(),
		logger:       zap.NewNop(),
		scopes: map[Scope]*scopeState{
			ScopeTickets: {state: ReadState{Phase: PhaseIdle}},
			ScopeStats:   {state: ReadState{Phase: PhaseIdle}},
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.loaders = map[Scope]loader{
		ScopeTickets: v.loadTickets,
		ScopeStats:   v.loadStats,
	}
	return v
}

// Close stops pending retries. Later loads return ErrClosed.
func (v *Coordinator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for _, s := range v.scopes {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.state.RetryAt = nil
	}
	v.cancel()
}

// Filters returns the active filters.
func (v *Coordinator) Filters() domain.TicketFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters
}

// SetFilters replaces the active filters and reloads the ticket list.
func (v *Coordinator) SetFilters(ctx context.Context, filter domain.TicketFilter) error {
	if details := validateFilter(filter); details != nil {
		return apperrors.NewValidationError("invalid filters", details)
	}
	v.mu.Lock()
	v.filters = filter
	v.mu.Unlock()
	return v.LoadTickets(ctx)
}

// LoadTickets fetches the remote ticket list for the active filters.
func (v *Coordinator) LoadTickets(ctx context.Context) error {
	return v.loadTickets(ctx, true)
}

// LoadStats fetches dashboard stats.
func (v *Coordinator) LoadStats(ctx context.Context) error {
	return v.loadStats(ctx, true)
}

// Refresh reloads both scopes. The ticket list error wins when both fail.
func (v *Coordinator) Refresh(ctx context.Context) error {
	ticketsErr := v.LoadTickets(ctx)
	statsErr := v.LoadStats(ctx)
	if ticketsErr != nil {
		return ticketsErr
	}
	return statsErr
}

// Snapshot returns a copy of the current state.
func (v *Coordinator) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Filters: v.filters,
		Tickets: v.scopes[ScopeTickets].state,
		Stats:   v.scopes[ScopeStats].state,
	}
}

// State returns the read state of scope.
func (v *Coordinator) State(scope Scope) ReadState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scopes[scope].state
}

// Stats returns the last loaded stats, if any.
func (v *Coordinator) Stats() *domain.Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stats == nil {
		return nil
	}
	cp := *v.stats
	return &cp
}

// DisplayTickets merges the loaded remote tickets with the local queue
// under the active filters, newest first.
func (v *Coordinator) DisplayTickets(ctx context.Context) ([]domain.DisplayTicket, error) {
	queued, err := v.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	remote := append([]domain.Ticket(nil), v.tickets...)
	filter := v.filters
	v.mu.Unlock()
	return domain.MergeDisplay(remote, queued, filter), nil
}

// UpdateStatus changes the status of a remote ticket. Queued tickets
// have no server identity yet and are rejected.
func (v *Coordinator) UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus) (*domain.Ticket, error) {
	if domain.IsSyntheticID(id) {
		return nil, apperrors.NewValidationError("This ticket is still waiting to sync and can't be updated yet.",
			map[string]any{"id": id})
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(status)})
	}

	ticket, err := v.api.UpdateTicket(ctx, id, domain.TicketPatch{Status: &status})
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	for i := range v.tickets {
		if v.tickets[i].ID == ticket.ID {
			v.tickets[i] = *ticket
		}
	}
	v.mu.Unlock()

	if v.dispatcher != nil {
		_ = v.dispatcher.Publish(ctx, events.New(events.EventTicketUpdated, v.clock.Now(),
			events.TicketUpdatedPayload{TicketID: ticket.ID, NewStatus: ticket.Status}))
	}
	if err := v.LoadStats(ctx); err != nil {
		v.logger.Debug("stats reload after update failed", zap.Error(err))
	}
	return ticket, nil
}

func (v *Coordinator) loadTickets(ctx context.Context, manual bool) error {
	id, filter, err := v.begin(ScopeTickets, manual)
	if err != nil {
		return err
	}
	tickets, err := v.api.ListTickets(ctx, filter)
	return v.finish(ScopeTickets, id, err, func() { v.tickets = tickets })
}

func (v *Coordinator) loadStats(ctx context.Context, manual bool) error {
	id, _, err := v.begin(ScopeStats, manual)
	if err != nil {
		return err
	}
	stats, err := v.api.GetStats(ctx)
	return v.finish(ScopeStats, id, err, func() { v.stats = stats })
}

// begin tags a new request for scope and cancels its pending retry.
// Manual loads restart the failure count.
func (v *Coordinator) begin(scope Scope, manual bool) (uint64, domain.TicketFilter, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, domain.TicketFilter{}, ErrClosed
	}
	s := v.scopes[scope]
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.latest++
	s.state.RequestID = s.latest
	s.state.RetryAt = nil
	if manual {
		s.state.Failures = 0
	}
	if s.state.LoadedAt == nil {
		s.state.Phase = PhaseLoading
	}
	return s.latest, v.filters, nil
}

// finish applies the outcome of request id unless a newer request for
// the same scope has started.
func (v *Coordinator) finish(scope Scope, id uint64, err error, apply func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.scopes[scope]
	if id != s.latest || v.closed {
		v.logger.Debug("discarding stale response", zap.String("scope", string(scope)), zap.Uint64("request_id", id))
		return nil
	}

	if err == nil {
		apply()
		now := v.clock.Now()
		s.state = ReadState{Phase: PhaseLoaded, RequestID: id, LoadedAt: &now}
		return nil
	}

	if transport.IsPermanent(err) {
		s.state.Error = transport.MessageOf(err)
		s.state.Notice = ""
		if s.state.LoadedAt != nil {
			s.state.Phase = PhaseLoaded
		} else {
			s.state.Phase = PhaseIdle
		}
		return err
	}

	delay := RetryDelay(s.state.Failures)
	s.state.Failures++
	s.state.Phase = PhaseRetrying
	s.state.Error = ""
	s.state.Notice = recoveryMessage(scope, v.online(), s.state.Failures, delay)
	retryAt := v.clock.Now().Add(delay)
	s.state.RetryAt = &retryAt

	load := v.loaders[scope]
	ctx := v.ctx
	s.timer = v.clock.AfterFunc(delay, func() {
		if err := load(ctx, false); err != nil && !errors.Is(err, ErrClosed) {
			v.logger.Debug("scheduled retry failed", zap.String("scope", string(scope)), zap.Error(err))
		}
	})
	v.logger.Debug("read failed, retry scheduled",
		zap.String("scope", string(scope)),
		zap.Int("failures", s.state.Failures),
		zap.Duration("delay", delay),
		zap.Error(err))
	return err
}

func (v *Coordinator) online() bool {
	if v.connectivity == nil {
		return true
	}
	return v.connectivity.Online()
}

func validateFilter(f domain.TicketFilter) map[string]any {
	details := map[string]any{}
	if f.Category != "" && !f.Category.Valid() {
		details["category"] = string(f.Category)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		details["priority"] = string(f.Priority)
	}
	if f.Status != "" && !f.Status.Valid() {
		details["status"] = string(f.Status)
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
