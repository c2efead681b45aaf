// Package queue implements the durable local queue of ticket creation
// requests that could not reach the ticket service.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/heuristics"
	"github.com/maher4real/support-ticket-system/internal/observability"
)

// Queue is an ordered, persisted list of QueuedTicket. It holds no
// in-memory copy: every read goes back to the store.
type Queue struct {
	store   Store
	clock   clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
	newID   func() string
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used for enqueue timestamps.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithMetrics publishes queue depth.
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithIDGenerator overrides queue id generation.
func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

// New creates a queue over store.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		clock:  clock.Real(),
		logger: zap.NewNop(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue scores the payload locally and appends it to the end of the
// queue.
func (q *Queue) Enqueue(ctx context.Context, payload domain.TicketPayload) (*domain.QueuedTicket, error) {
	payload.Normalize()
	estimate := heuristics.ScoreSentimentUrgency(payload.Title + "\n" + payload.Description)
	item := domain.QueuedTicket{
		QueueID:      q.newID(),
		CreatedAt:    q.clock.Now().UTC(),
		Payload:      payload,
		Sentiment:    estimate.Sentiment,
		UrgencyScore: estimate.UrgencyScore,
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode queued ticket: %w", err)
	}
	if err := q.store.Append(ctx, item.QueueID, raw); err != nil {
		return nil, err
	}
	q.logger.Info("ticket queued locally",
		zap.String("queue_id", item.QueueID),
		zap.String("category", string(payload.Category)),
		zap.String("priority", string(payload.Priority)))
	q.publishDepth(ctx)
	return &item, nil
}

// List returns the queue in insertion order. Malformed entries are
// skipped.
func (q *Queue) List(ctx context.Context) ([]domain.QueuedTicket, error) {
	records, err := q.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.QueuedTicket, 0, len(records))
	for _, rec := range records {
		item, ok := decodeQueued(rec.Payload)
		if !ok {
			q.logger.Debug("dropping malformed queue entry", zap.String("key", rec.Key))
			continue
		}
		items = append(items, item)
	}
	q.metrics.SetQueueDepth(NamespacePending, len(items))
	return items, nil
}

// Get returns the entry with queueID, if present.
func (q *Queue) Get(ctx context.Context, queueID string) (*domain.QueuedTicket, bool, error) {
	items, err := q.List(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range items {
		if items[i].QueueID == queueID {
			return &items[i], true, nil
		}
	}
	return nil, false, nil
}

// Len returns the number of valid entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Remove deletes the entry with queueID. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, queueID string) error {
	if err := q.store.Delete(ctx, queueID); err != nil {
		return err
	}
	q.publishDepth(ctx)
	return nil
}

// Ping checks the backing store.
func (q *Queue) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}

func (q *Queue) publishDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	_, _ = q.List(ctx)
}

func decodeQueued(raw []byte) (domain.QueuedTicket, bool) {
	var item domain.QueuedTicket
	if len(raw) == 0 {
		return item, false
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, false
	}
	return item, validQueued(item)
}

func validQueued(item domain.QueuedTicket) bool {
	switch {
	case strings.TrimSpace(item.QueueID) == "":
		return false
	case item.CreatedAt.IsZero():
		return false
	case strings.TrimSpace(item.Payload.Title) == "", strings.TrimSpace(item.Payload.Description) == "":
		return false
	case !item.Payload.Category.Valid(), !item.Payload.Priority.Valid():
		return false
	case !item.Sentiment.Valid():
		return false
	case item.UrgencyScore < 0 || item.UrgencyScore > 100:
		return false
	}
	return true
}

// DeadLetters holds queued tickets the ticket service permanently
// rejected, so they no longer block the pending queue.
type DeadLetters struct {
	store   Store
	clock   clock.Clock
	metrics *observability.Metrics
}

// NewDeadLetters creates a dead-letter list over store.
func NewDeadLetters(store Store, c clock.Clock, metrics *observability.Metrics) *DeadLetters {
	if c == nil {
		c = clock.Real()
	}
	return &DeadLetters{store: store, clock: c, metrics: metrics}
}

// Add records item with the rejection reason. Adding the same item again
// replaces the earlier reason.
func (d *DeadLetters) Add(ctx context.Context, item domain.QueuedTicket, reason string) (*domain.DeadLetter, error) {
	letter := domain.DeadLetter{QueuedTicket: item, Reason: reason, FailedAt: d.clock.Now().UTC()}
	raw, err := json.Marshal(letter)
	if err != nil {
		return nil, fmt.Errorf("encode dead letter: %w", err)
	}
	if err := d.store.Append(ctx, item.QueueID, raw); err != nil {
		return nil, err
	}
	_, _ = d.List(ctx)
	return &letter, nil
}

// List returns dead letters in the order they failed.
func (d *DeadLetters) List(ctx context.Context) ([]domain.DeadLetter, error) {
	records, err := d.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	letters := make([]domain.DeadLetter, 0, len(records))
	for _, rec := range records {
		var letter domain.DeadLetter
		if err := json.Unmarshal(rec.Payload, &letter); err != nil || !validQueued(letter.QueuedTicket) {
			continue
		}
		letters = append(letters, letter)
	}
	d.metrics.SetQueueDepth(NamespaceDeadLetter, len(letters))
	return letters, nil
}

// Remove drops a dead letter.
func (d *DeadLetters) Remove(ctx context.Context, queueID string) error {
	if err := d.store.Delete(ctx, queueID); err != nil {
		return err
	}
	_, _ = d.List(ctx)
	return nil
}

// enqueueTimeout bounds store writes issued from background paths.
const enqueueTimeout = 5 * time.Second

// Detached returns a context for store writes that must survive the
// cancellation of the caller's request.
func Detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
}
