package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/queue"
	"github.com/maher4real/support-ticket-system/internal/service"
	"github.com/maher4real/support-ticket-system/internal/syncer"
	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

// QueueHandler exposes the local queue, dead letters, manual sync and the
// activity feed.
type QueueHandler struct {
	queue         *queue.Queue
	deadLetters   *queue.DeadLetters
	syncer        *syncer.Synchronizer
	notifications *service.NotificationService
	logger        *zap.Logger
}

// NewQueueHandler constructs handler. deadLetters and notifications may be nil.
func NewQueueHandler(q *queue.Queue, deadLetters *queue.DeadLetters, s *syncer.Synchronizer, notifications *service.NotificationService, logger *zap.Logger) *QueueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueHandler{queue: q, deadLetters: deadLetters, syncer: s, notifications: notifications, logger: logger}
}

// ListQueue GET /queue.
func (h *QueueHandler) ListQueue(c *fiber.Ctx) error {
	items, err := h.queue.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":    items,
		"notice":  h.syncer.Notice(),
		"syncing": h.syncer.Running(),
	})
}

// ListDeadLetters GET /queue/dead-letters.
func (h *QueueHandler) ListDeadLetters(c *fiber.Ctx) error {
	if h.deadLetters == nil {
		return c.JSON(fiber.Map{"data": []any{}})
	}
	letters, err := h.deadLetters.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": letters})
}

// DropDeadLetter DELETE /queue/dead-letters/:id.
func (h *QueueHandler) DropDeadLetter(c *fiber.Ctx) error {
	id := c.Params("id")
	if h.deadLetters == nil {
		return apperrors.NewNotFound("dead letter", map[string]any{"queue_id": id})
	}
	ctx := c.UserContext()
	letters, err := h.deadLetters.List(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, letter := range letters {
		if letter.QueueID == id {
			found = true
			break
		}
	}
	if !found {
		return apperrors.NewNotFound("dead letter", map[string]any{"queue_id": id})
	}
	if err := h.deadLetters.Remove(ctx, id); err != nil {
		return err
	}
	h.logger.Info("dead letter dropped", zap.String("queue_id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

// Sync POST /sync runs a flush now. A flush already in progress answers 202.
func (h *QueueHandler) Sync(c *fiber.Ctx) error {
	result := h.syncer.Trigger(c.UserContext(), syncer.ReasonManual)
	if result.Err != nil {
		h.logger.Debug("manual sync stopped", zap.Error(result.Err))
	}
	status := fiber.StatusOK
	if result.Skipped {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": result})
}

// Notifications GET /notifications.
func (h *QueueHandler) Notifications(c *fiber.Ctx) error {
	if h.notifications == nil {
		return c.JSON(fiber.Map{"data": []any{}})
	}
	return c.JSON(fiber.Map{"data": h.notifications.Recent(c.QueryInt("limit", 0))})
}
