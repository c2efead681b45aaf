package service_test

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/persistence"
	"github.com/maher4real/support-ticket-system/internal/queue"
	"github.com/maher4real/support-ticket-system/internal/remote"
	"github.com/maher4real/support-ticket-system/internal/remote/remotetest"
	"github.com/maher4real/support-ticket-system/internal/service"
	apperrors "github.com/maher4real/support-ticket-system/pkg/util/errorutil"
)

type harness struct {
	svc       *service.TicketService
	server    *remotetest.Server
	queue     *queue.Queue
	published []events.EventType
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := persistence.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "queue.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		server: remotetest.NewServer(t),
		queue:  queue.New(queue.NewSQLiteStore(db.DB, queue.NamespacePending)),
	}
	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, et := range []events.EventType{events.EventTicketCreated, events.EventTicketQueued} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			h.published = append(h.published, e.Type)
			return nil
		})
	}
	h.svc = service.NewTicketService(service.TicketDependencies{
		API:        h.server.API(),
		Queue:      h.queue,
		Dispatcher: dispatcher,
	})
	return h
}

func validPayload() domain.TicketPayload {
	return domain.TicketPayload{
		Title:       "  Production checkout down ",
		Description: "Production checkout fails with 500 for all users",
		Category:    domain.TicketCategoryTechnical,
		Priority:    domain.TicketPriorityCritical,
	}
}

func TestCreateTicket_Remote(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateTicket(context.Background(), validPayload())
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.False(t, res.Ticket.LocalOnly)
	assert.Positive(t, res.Ticket.ID)
	assert.Equal(t, "Production checkout down", res.Ticket.Title)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, h.published)

	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateTicket_QueuesOnTransientFailure(t *testing.T) {
	for name, status := range map[string]int{
		"unavailable":  http.StatusServiceUnavailable,
		"rate limited": http.StatusTooManyRequests,
		"dropped":      remotetest.DropConnection,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.server.FailNext(remote.OpCreateTicket, status)

			res, err := h.svc.CreateTicket(context.Background(), validPayload())
			require.NoError(t, err)
			assert.True(t, res.Queued)
			assert.True(t, res.Ticket.LocalOnly)
			assert.Negative(t, res.Ticket.ID)
			assert.Equal(t, domain.TicketStatusOpen, res.Ticket.Status)
			assert.Equal(t, service.QueuedMessage, res.Message)
			assert.Equal(t, []events.EventType{events.EventTicketQueued}, h.published)

			items, err := h.queue.List(context.Background())
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, res.Ticket.QueueID, items[0].QueueID)
			assert.Equal(t, domain.TicketSentimentNeutral, items[0].Sentiment)
			assert.Equal(t, 95, items[0].UrgencyScore)
		})
	}
}

func TestCreateTicket_PermanentFailureSurfacesServerMessage(t *testing.T) {
	h := newHarness(t)
	h.server.FailNext(remote.OpCreateTicket, http.StatusForbidden)

	_, err := h.svc.CreateTicket(context.Background(), validPayload())
	de := apperrors.ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Equal(t, "Forbidden", de.Message)
	assert.Equal(t, http.StatusForbidden, de.Details["upstream_status"])

	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.published)
}

func TestCreateTicket_LocalValidation(t *testing.T) {
	h := newHarness(t)
	payload := validPayload()
	payload.Title = strings.Repeat("a", domain.MaxTitleLength+1)
	payload.Category = "sales"

	_, err := h.svc.CreateTicket(context.Background(), payload)
	de := apperrors.ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Contains(t, de.Details, "title")
	assert.Contains(t, de.Details, "category")
	assert.Zero(t, h.server.Calls(remote.OpCreateTicket))
}

func TestClassify(t *testing.T) {
	description := "Production checkout fails with 500 for all users"

	t.Run("remote", func(t *testing.T) {
		h := newHarness(t)
		h.server.SetClassification(domain.Classification{SuggestedCategory: domain.TicketCategoryBilling, SuggestedPriority: domain.TicketPriorityLow})
		res, err := h.svc.Classify(context.Background(), description)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceRemote, res.Source)
		assert.Equal(t, domain.TicketCategoryBilling, res.SuggestedCategory)
	})

	t.Run("invalid remote answer", func(t *testing.T) {
		h := newHarness(t)
		h.server.SetClassification(domain.Classification{SuggestedCategory: "outage", SuggestedPriority: "p0"})
		res, err := h.svc.Classify(context.Background(), description)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLocal, res.Source)
		assert.Equal(t, domain.TicketCategoryTechnical, res.SuggestedCategory)
		assert.Equal(t, domain.TicketPriorityCritical, res.SuggestedPriority)
	})

	t.Run("service down", func(t *testing.T) {
		h := newHarness(t)
		h.server.FailAlways(remote.OpClassify, http.StatusBadGateway)
		res, err := h.svc.Classify(context.Background(), description)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLocal, res.Source)
		assert.Equal(t, domain.TicketPriorityCritical, res.SuggestedPriority)
		assert.Equal(t, 3, h.server.Calls(remote.OpClassify))
	})

	t.Run("blank description", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Classify(context.Background(), "   ")
		assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
	})
}

func TestSuggestTitle(t *testing.T) {
	t.Run("remote normalized", func(t *testing.T) {
		h := newHarness(t)
		h.server.SetSuggestedTitle(`  "Checkout outage."  `)
		res, err := h.svc.SuggestTitle(context.Background(), "Checkout is down. Please help.")
		require.NoError(t, err)
		assert.Equal(t, domain.SourceRemote, res.Source)
		assert.Equal(t, "Checkout outage", res.SuggestedTitle)
	})

	t.Run("empty remote answer", func(t *testing.T) {
		h := newHarness(t)
		h.server.SetSuggestedTitle("  ")
		res, err := h.svc.SuggestTitle(context.Background(), "Checkout is down. Please help.")
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLocal, res.Source)
		assert.Equal(t, "Checkout is down", res.SuggestedTitle)
	})

	t.Run("service down", func(t *testing.T) {
		h := newHarness(t)
		h.server.FailAlways(remote.OpSuggestTitle, http.StatusServiceUnavailable)
		res, err := h.svc.SuggestTitle(context.Background(), "Refund never arrived! It has been weeks.")
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLocal, res.Source)
		assert.Equal(t, "Refund never arrived", res.SuggestedTitle)
	})
}
