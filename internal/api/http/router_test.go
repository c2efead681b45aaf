package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maher4real/support-ticket-system/internal/app"
	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/config"
	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/remote"
	"github.com/maher4real/support-ticket-system/internal/remote/remotetest"
	"github.com/maher4real/support-ticket-system/internal/transport"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	app    *app.App
	server *remotetest.Server
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := remotetest.NewServer(t)
	fake := clock.NewFake(start)
	cfg := &config.Config{
		App: config.AppConfig{Name: "intake-test", Version: "test", RequestTimeoutSeconds: 5},
		Remote: config.RemoteConfig{
			BaseURL:       server.URL,
			ReadTimeout:   2 * time.Second,
			WriteTimeout:  2 * time.Second,
			AITimeout:     2 * time.Second,
			ReadAttempts:  3,
			ProbeInterval: time.Minute,
		},
		Queue:   config.QueueConfig{Backend: config.QueueBackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "queue.db")},
		Sync:    config.SyncConfig{Interval: time.Minute, PermanentFailurePolicy: config.PolicyDeadLetter},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	a, err := app.New(context.Background(), cfg, nil,
		app.WithClock(fake),
		app.WithTransportOptions(
			transport.WithClock(clock.Real()),
			transport.WithRetryConfig(transport.RetryConfig{MaxAttempts: 3, BackoffStep: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
		))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &fixture{app: a, server: server, clock: fake}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.HTTP.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func validTicket() map[string]any {
	return map[string]any{
		"title":       "Checkout is down",
		"description": "Customers cannot pay, this is urgent",
		"category":    "technical",
		"priority":    "high",
	}
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, true, body["online"])
}

func TestCreateTicket_Remote(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/tickets", validTicket())
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, false, body["queued"])
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["id"])
	assert.Len(t, f.server.Tickets(), 1)
}

func TestCreateTicket_QueuedThenSynced(t *testing.T) {
	f := newFixture(t)
	f.server.FailNext(remote.OpCreateTicket, http.StatusServiceUnavailable)

	status, body := f.do(t, http.MethodPost, "/tickets", validTicket())
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, true, body["queued"])
	data := body["data"].(map[string]any)
	assert.Less(t, data["id"].(float64), float64(0))
	assert.Equal(t, true, data["local_only"])
	assert.Empty(t, f.server.Tickets())

	status, body = f.do(t, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = f.do(t, http.MethodGet, "/tickets", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, true, items[0].(map[string]any)["local_only"])

	status, body = f.do(t, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["synced"])

	_, body = f.do(t, http.MethodGet, "/queue", nil)
	assert.Empty(t, body["data"])

	_, body = f.do(t, http.MethodGet, "/tickets", nil)
	items = body["data"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Greater(t, item["id"].(float64), float64(0))
	assert.Equal(t, false, item["local_only"])
}

func TestCreateTicket_Errors(t *testing.T) {
	t.Run("local validation", func(t *testing.T) {
		f := newFixture(t)
		payload := validTicket()
		payload["title"] = "  "

		status, body := f.do(t, http.MethodPost, "/tickets", payload)
		require.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
		assert.Zero(t, f.server.Calls(remote.OpCreateTicket))
	})

	t.Run("rejected by the service", func(t *testing.T) {
		f := newFixture(t)
		f.server.FailNext(remote.OpCreateTicket, http.StatusForbidden)

		status, body := f.do(t, http.MethodPost, "/tickets", validTicket())
		require.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Forbidden", errorMessage(body))

		_, body = f.do(t, http.MethodGet, "/queue", nil)
		assert.Empty(t, body["data"])
	})
}

func TestUpdateTicket(t *testing.T) {
	f := newFixture(t)
	f.server.Seed(domain.Ticket{
		ID: 7, Title: "Refund", Description: "Charged twice", Category: domain.TicketCategoryBilling,
		Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusOpen, CreatedAt: start,
	})

	status, body := f.do(t, http.MethodPatch, "/tickets/7", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "resolved", body["data"].(map[string]any)["status"])

	status, body = f.do(t, http.MethodPatch, "/tickets/-42", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "This ticket is still waiting to sync and can't be updated yet.", errorMessage(body))

	status, body = f.do(t, http.MethodPatch, "/tickets/abc", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestListTickets_Filters(t *testing.T) {
	f := newFixture(t)
	f.server.Seed(
		domain.Ticket{ID: 1, Title: "Refund", Description: "Charged twice", Category: domain.TicketCategoryBilling,
			Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusOpen, CreatedAt: start},
		domain.Ticket{ID: 2, Title: "Login loop", Description: "Cannot sign in", Category: domain.TicketCategoryAccount,
			Priority: domain.TicketPriorityHigh, Status: domain.TicketStatusOpen, CreatedAt: start.Add(time.Hour)},
	)

	status, body := f.do(t, http.MethodGet, "/tickets?category=billing", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 1, items[0].(map[string]any)["id"])
	assert.Equal(t, "billing", body["filters"].(map[string]any)["category"])
	assert.Equal(t, "loaded", body["state"].(map[string]any)["phase"])

	status, body = f.do(t, http.MethodGet, "/tickets?priority=urgent", nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestListTickets_FilterSurvivesLaterRequests(t *testing.T) {
	f := newFixture(t)
	f.server.Seed(
		domain.Ticket{ID: 1, Title: "Gateway timeout", Description: "Checkout hangs", Category: domain.TicketCategoryTechnical,
			Priority: domain.TicketPriorityHigh, Status: domain.TicketStatusOpen, CreatedAt: start},
		domain.Ticket{ID: 2, Title: "Refund", Description: "Charged twice", Category: domain.TicketCategoryBilling,
			Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusOpen, CreatedAt: start.Add(time.Hour)},
	)

	status, _ := f.do(t, http.MethodGet, "/tickets?search=timeout&category=technical", nil)
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 20; i++ {
		status, _ = f.do(t, http.MethodGet, "/queue/?search=XXXXXXX&category=zzzzzzzzz", nil)
		require.Equal(t, http.StatusOK, status)
		status, _ = f.do(t, http.MethodGet, "/stats?search=YYYYYYY&category=qqqqqqqqq", nil)
		require.Equal(t, http.StatusOK, status)
	}

	filters := f.app.View.Filters()
	assert.Equal(t, "timeout", filters.Search)
	assert.Equal(t, domain.TicketCategoryTechnical, filters.Category)

	status, body := f.do(t, http.MethodGet, "/tickets?search=timeout&category=technical", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "timeout", body["filters"].(map[string]any)["search"])
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 1, items[0].(map[string]any)["id"])
}

func TestListTickets_ReadFailureKeepsPage(t *testing.T) {
	f := newFixture(t)
	f.server.FailAlways(remote.OpListTickets, http.StatusServiceUnavailable)

	status, body := f.do(t, http.MethodGet, "/tickets", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "retrying", state["phase"])
	assert.Contains(t, state["notice"], "Having trouble loading tickets")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.server.Seed(domain.Ticket{
		ID: 3, Title: "Refund", Description: "Charged twice", Category: domain.TicketCategoryBilling,
		Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusOpen, CreatedAt: start,
	})
	_, err := f.app.Queue.Enqueue(context.Background(), domain.TicketPayload{
		Title: "Queued", Description: "Waiting", Category: domain.TicketCategoryGeneral, Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	status, body := f.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["total_tickets"])
	assert.EqualValues(t, 1, body["queued"])
	assert.Equal(t, "loaded", body["state"].(map[string]any)["phase"])
}

func TestAIHelpers(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/tickets/classify", map[string]any{"description": "The app crashes on login"})
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "remote", data["source"])
	assert.Equal(t, "technical", data["suggested_category"])

	f.server.FailAlways(remote.OpSuggestTitle, http.StatusServiceUnavailable)
	status, body = f.do(t, http.MethodPost, "/tickets/suggest-title", map[string]any{"description": "I was charged twice for my order"})
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "local", data["source"])
	assert.NotEmpty(t, data["suggested_title"])

	status, body = f.do(t, http.MethodPost, "/tickets/classify", map[string]any{"description": " "})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestDeadLetters(t *testing.T) {
	f := newFixture(t)
	item, err := f.app.Queue.Enqueue(context.Background(), domain.TicketPayload{
		Title:       strings.Repeat("x", domain.MaxTitleLength+1),
		Description: "Too long to be accepted",
		Category:    domain.TicketCategoryGeneral,
		Priority:    domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	status, body := f.do(t, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, status)
	result := body["data"].(map[string]any)
	assert.EqualValues(t, 1, result["dead_lettered"])
	assert.Equal(t, "error", result["notice"].(map[string]any)["level"])

	_, body = f.do(t, http.MethodGet, "/queue/dead-letters", nil)
	letters := body["data"].([]any)
	require.Len(t, letters, 1)
	assert.Equal(t, item.QueueID, letters[0].(map[string]any)["queue_id"])

	status, _ = f.do(t, http.MethodDelete, "/queue/dead-letters/"+item.QueueID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = f.do(t, http.MethodDelete, "/queue/dead-letters/"+item.QueueID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestSync_Offline(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.Queue.Enqueue(context.Background(), domain.TicketPayload{
		Title: "Queued", Description: "Waiting", Category: domain.TicketCategoryGeneral, Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)
	f.app.Connectivity.Set(context.Background(), false)

	status, body := f.do(t, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, status)
	notice := body["data"].(map[string]any)["notice"].(map[string]any)
	assert.Equal(t, "warning", notice["level"])
	assert.Contains(t, notice["message"], "You are offline")
	assert.Zero(t, f.server.Calls(remote.OpCreateTicket))

	_, body = f.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, false, body["online"])
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	f.server.FailNext(remote.OpCreateTicket, http.StatusServiceUnavailable)
	status, _ := f.do(t, http.MethodPost, "/tickets", validTicket())
	require.Equal(t, http.StatusAccepted, status)

	status, body := f.do(t, http.MethodGet, "/notifications?limit=5", nil)
	require.Equal(t, http.StatusOK, status)
	feed := body["data"].([]any)
	require.NotEmpty(t, feed)
	assert.Equal(t, "ticket_queued", feed[0].(map[string]any)["type"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health/live", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.app.HTTP.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "intake_api_requests_total")
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	resp, err := f.app.HTTP.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
