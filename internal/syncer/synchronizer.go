// Package syncer drains the durable local queue into the ticket service.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/config"
	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/observability"
	"github.com/maher4real/support-ticket-system/internal/queue"
	"github.com/maher4real/support-ticket-system/internal/transport"
)

// Reason names what asked for a flush.
type Reason string

const (
	ReasonStartup   Reason = "startup"
	ReasonReconnect Reason = "reconnect"
	ReasonInterval  Reason = "interval"
	ReasonEnqueued  Reason = "enqueued"
	ReasonWrite     Reason = "write"
	ReasonManual    Reason = "manual"
)

// Result outcomes recorded in metrics.
const (
	resultSkipped   = "skipped"
	resultEmpty     = "empty"
	resultOffline   = "offline"
	resultDrained   = "drained"
	resultTransient = "transient"
	resultPermanent = "permanent"
	resultError     = "error"
)

// Creator submits a ticket to the ticket service.
type Creator interface {
	CreateTicket(ctx context.Context, payload domain.TicketPayload) (*domain.Ticket, error)
}

// Connectivity reports the network signal.
type Connectivity interface {
	Online() bool
}

// Result describes one Trigger call.
type Result struct {
	Reason       Reason `json:"reason"`
	Skipped      bool   `json:"skipped"`
	Synced       int    `json:"synced"`
	DeadLettered int    `json:"dead_lettered"`
	Remaining    int    `json:"remaining"`
	Notice       Notice `json:"notice"`
	Err          error  `json:"-"`
}

// RefreshFunc reloads views after queued tickets reached the server.
type RefreshFunc func(ctx context.Context)

// Synchronizer flushes the queue in FIFO order, one item at a time.
// Only one flush runs at a time; overlapping triggers are skipped.
type Synchronizer struct {
	queue        *queue.Queue
	deadLetters  *queue.DeadLetters
	api          Creator
	connectivity Connectivity
	dispatcher   events.Dispatcher
	policy       string
	clock        clock.Clock
	logger       *zap.Logger
	metrics      *observability.Metrics

	running atomic.Bool

	mu        sync.Mutex
	notice    Notice
	refreshes []RefreshFunc
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDeadLetters sets where permanently rejected items are moved.
func WithDeadLetters(d *queue.DeadLetters) Option {
	return func(s *Synchronizer) { s.deadLetters = d }
}

// WithPolicy selects config.PolicyBlock or config.PolicyDeadLetter.
func WithPolicy(policy string) Option {
	return func(s *Synchronizer) { s.policy = policy }
}

// WithDispatcher publishes sync events.
func WithDispatcher(d events.Dispatcher) Option {
	return func(s *Synchronizer) { s.dispatcher = d }
}

// WithClock sets the clock used for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// WithMetrics records sync runs.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// New creates a synchronizer. The default policy moves rejected items to
// dead letters when a dead-letter list is configured.
func New(q *queue.Queue, api Creator, conn Connectivity, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		queue:        q,
		api:          api,
		connectivity: conn,
		policy:       config.PolicyDeadLetter,
		clock:        clock.Real(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSynced registers fn to run after a flush submitted at least one item.
func (s *Synchronizer) OnSynced(fn RefreshFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes = append(s.refreshes, fn)
}

// Notice returns the current queue notice.
func (s *Synchronizer) Notice() Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Running reports whether a flush is in progress.
func (s *Synchronizer) Running() bool {
	return s.running.Load()
}

// Trigger runs one flush unless another is already in progress.
func (s *Synchronizer) Trigger(ctx context.Context, reason Reason) Result {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordSync(string(reason), resultSkipped, 0)
		return Result{Reason: reason, Skipped: true, Notice: s.Notice()}
	}
	defer s.running.Store(false)

	res, outcome := s.flush(ctx, reason)
	s.setNotice(res.Notice)
	s.metrics.RecordSync(string(reason), outcome, res.Synced)

	if res.Synced > 0 {
		s.logger.Info("queued tickets synced",
			zap.String("reason", string(reason)),
			zap.Int("synced", res.Synced),
			zap.Int("remaining", res.Remaining))
		s.publish(ctx, events.EventQueueSynced, events.QueueSyncedPayload{Synced: res.Synced, Remaining: res.Remaining})
		s.runRefreshes(ctx)
	}
	return res
}

func (s *Synchronizer) flush(ctx context.Context, reason Reason) (Result, string) {
	res := Result{Reason: reason}

	items, err := s.queue.List(ctx)
	if err != nil {
		s.logger.Error("failed to read local queue", zap.Error(err))
		res.Err = err
		res.Notice = storeErrorNotice(0)
		return res, resultError
	}
	res.Remaining = len(items)
	if len(items) == 0 {
		res.Notice = s.deadLetterNotice(ctx)
		return res, resultEmpty
	}
	if !s.connectivity.Online() {
		res.Notice = offlineNotice(len(items))
		return res, resultOffline
	}

	for _, item := range items {
		_, err := s.api.CreateTicket(ctx, item.Payload)
		if err == nil {
			if err := s.remove(ctx, item.QueueID); err != nil {
				res.Err = err
				res.Notice = storeErrorNotice(res.Remaining)
				return res, resultError
			}
			res.Synced++
			res.Remaining--
			continue
		}

		res.Err = err
		if !transport.IsPermanent(err) {
			s.logger.Debug("queue flush paused",
				zap.String("queue_id", item.QueueID),
				zap.Bool("timeout", transport.IsTimeout(err)),
				zap.Error(err))
			res.Notice = stillSyncingNotice(res.Remaining)
			return res, resultTransient
		}
		return s.reject(ctx, res, item, transport.MessageOf(err)), resultPermanent
	}

	if res.Synced > 0 {
		res.Notice = syncedNotice(res.Synced)
	}
	return res, resultDrained
}

// reject applies the permanent failure policy to item and stops the flush.
func (s *Synchronizer) reject(ctx context.Context, res Result, item domain.QueuedTicket, reason string) Result {
	s.logger.Warn("queued ticket rejected by ticket service",
		zap.String("queue_id", item.QueueID),
		zap.String("policy", s.policy),
		zap.String("reason", reason))

	if s.policy != config.PolicyDeadLetter || s.deadLetters == nil {
		res.Notice = blockedNotice(reason, res.Remaining)
		s.publish(ctx, events.EventQueueItemRejected, events.QueueItemRejectedPayload{QueueID: item.QueueID, Reason: reason})
		return res
	}

	wctx, cancel := queue.Detached(ctx)
	defer cancel()
	if _, err := s.deadLetters.Add(wctx, item, reason); err != nil {
		s.logger.Error("failed to dead-letter queued ticket", zap.String("queue_id", item.QueueID), zap.Error(err))
		res.Notice = blockedNotice(reason, res.Remaining)
		return res
	}
	if err := s.queue.Remove(wctx, item.QueueID); err != nil {
		s.logger.Error("failed to remove dead-lettered ticket", zap.String("queue_id", item.QueueID), zap.Error(err))
		res.Notice = blockedNotice(reason, res.Remaining)
		return res
	}
	res.DeadLettered++
	res.Remaining--
	res.Notice = deadLetteredNotice(reason, res.Remaining)
	s.publish(ctx, events.EventQueueItemRejected, events.QueueItemRejectedPayload{QueueID: item.QueueID, Reason: reason, DeadLettered: true})
	return res
}

// remove drops a submitted item even if the caller's context ends, so a
// ticket that reached the server is never submitted twice.
func (s *Synchronizer) remove(ctx context.Context, queueID string) error {
	wctx, cancel := queue.Detached(ctx)
	defer cancel()
	if err := s.queue.Remove(wctx, queueID); err != nil {
		s.logger.Error("failed to remove synced ticket", zap.String("queue_id", queueID), zap.Error(err))
		return err
	}
	return nil
}

// deadLetterNotice keeps rejected tickets visible once the pending
// queue is empty.
func (s *Synchronizer) deadLetterNotice(ctx context.Context) Notice {
	if s.deadLetters == nil {
		return Notice{}
	}
	letters, err := s.deadLetters.List(ctx)
	if err != nil || len(letters) == 0 {
		return Notice{}
	}
	return setAsideNotice(len(letters))
}

func (s *Synchronizer) setNotice(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = n
}

func (s *Synchronizer) runRefreshes(ctx context.Context) {
	s.mu.Lock()
	refreshes := append([]RefreshFunc(nil), s.refreshes...)
	s.mu.Unlock()
	for _, fn := range refreshes {
		fn(ctx)
	}
}

func (s *Synchronizer) publish(ctx context.Context, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, s.clock.Now(), payload))
}
