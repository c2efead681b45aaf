package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/events"
)

// defaultFeedSize bounds the in-memory notification feed.
const defaultFeedSize = 50

// Notification is a user facing message derived from an event.
type Notification struct {
	ID      string           `json:"id"`
	Type    events.EventType `json:"type"`
	Level   string           `json:"level"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// NotificationService turns pipeline events into a feed presentation
// code can poll for toasts.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu    sync.Mutex
	feed  []Notification
	limit int
}

// NewNotificationService creates the service. limit <= 0 uses the default.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, limit int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = defaultFeedSize
	}
	return &NotificationService{dispatcher: dispatcher, logger: logger, limit: limit}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketQueued, n.handleTicketQueued)
	n.dispatcher.Subscribe(events.EventQueueSynced, n.handleQueueSynced)
	n.dispatcher.Subscribe(events.EventQueueItemRejected, n.handleQueueItemRejected)
	n.dispatcher.Subscribe(events.EventConnectivityChanged, n.handleConnectivityChanged)
}

// Recent returns up to limit notifications, newest first.
func (n *NotificationService) Recent(limit int) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 || limit > len(n.feed) {
		limit = len(n.feed)
	}
	out := make([]Notification, 0, limit)
	for i := len(n.feed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, n.feed[i])
	}
	return out
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketCreated", zap.Int64("ticket_id", p.TicketID), zap.String("priority", string(p.Priority)))
	n.push(event, "info", fmt.Sprintf("Ticket #%d created.", p.TicketID))
	return nil
}

func (n *NotificationService) handleTicketQueued(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketQueuedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("TicketQueued", zap.String("queue_id", p.QueueID), zap.String("reason", p.Reason))
	n.push(event, "warning", fmt.Sprintf("%q was saved on this device and will sync automatically.", p.Title))
	return nil
}

func (n *NotificationService) handleQueueSynced(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.QueueSyncedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Info("QueueSynced", zap.Int("synced", p.Synced), zap.Int("remaining", p.Remaining))
	n.push(event, "info", fmt.Sprintf("%d saved ticket(s) reached the server.", p.Synced))
	return nil
}

func (n *NotificationService) handleQueueItemRejected(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.QueueItemRejectedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	n.logger.Warn("QueueItemRejected", zap.String("queue_id", p.QueueID), zap.String("reason", p.Reason), zap.Bool("dead_lettered", p.DeadLettered))
	n.push(event, "error", "A saved ticket was rejected by the server: "+p.Reason)
	return nil
}

func (n *NotificationService) handleConnectivityChanged(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ConnectivityChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if p.Online {
		n.push(event, "info", "Connection restored.")
	} else {
		n.push(event, "warning", "Connection lost. New tickets will be saved on this device.")
	}
	return nil
}

func (n *NotificationService) push(event events.Event, level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.feed = append(n.feed, Notification{ID: event.ID, Type: event.Type, Level: level, Message: message, At: event.Timestamp})
	if over := len(n.feed) - n.limit; over > 0 {
		n.feed = append([]Notification(nil), n.feed[over:]...)
	}
}
