// Package remotetest provides an in-memory ticket service served over
// httptest for exercising the client stack end to end.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/remote"
	"github.com/maher4real/support-ticket-system/internal/transport"
)

// DropConnection makes a scripted failure close the connection without
// writing a response.
const DropConnection = 0

// Server is a fake ticket service.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	tickets        []domain.Ticket
	nextID         int64
	now            func() time.Time
	failures       map[string][]int
	calls          map[string]int
	creates        []domain.TicketPayload
	classification domain.Classification
	suggestedTitle string
}

// NewServer starts a fake service that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:         1,
		now:            func() time.Time { return time.Now().UTC() },
		failures:       map[string][]int{},
		calls:          map[string]int{},
		classification: domain.Classification{SuggestedCategory: domain.TicketCategoryTechnical, SuggestedPriority: domain.TicketPriorityHigh},
		suggestedTitle: "Checkout outage",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tickets/{$}", s.scripted(remote.OpCreateTicket, s.create))
	mux.HandleFunc("GET /api/tickets/{$}", s.scripted(remote.OpListTickets, s.list))
	mux.HandleFunc("PATCH /api/tickets/{id}/", s.scripted(remote.OpUpdateTicket, s.update))
	mux.HandleFunc("GET /api/tickets/stats/", s.scripted(remote.OpGetStats, s.stats))
	mux.HandleFunc("POST /api/tickets/classify/", s.scripted(remote.OpClassify, s.classify))
	mux.HandleFunc("POST /api/tickets/suggest-title/", s.scripted(remote.OpSuggestTitle, s.suggestTitle))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// API returns a ticket client pointed at the fake.
func (s *Server) API(opts ...transport.Option) remote.TicketAPI {
	opts = append([]transport.Option{transport.WithRetryConfig(transport.RetryConfig{
		MaxAttempts: transport.DefaultMaxAttempts,
		BackoffStep: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})}, opts...)
	return remote.NewTicketAPI(transport.NewClient(s.URL, opts...), remote.Timeouts{
		Read:  2 * time.Second,
		Write: 2 * time.Second,
		AI:    2 * time.Second,
	})
}

// SetNow fixes the clock used for created_at.
func (s *Server) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// FailNext scripts the next responses for op. DropConnection closes the
// connection instead of answering.
func (s *Server) FailNext(op string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], statuses...)
}

// FailAlways makes every call to op fail with status until Recover.
func (s *Server) FailAlways(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = []int{-1 - status}
}

// Recover clears scripted failures for op.
func (s *Server) Recover(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

// Seed stores tickets as if they had been created earlier.
func (s *Server) Seed(tickets ...domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
		s.tickets = append(s.tickets, t)
	}
}

// SetClassification changes the AI classification answer.
func (s *Server) SetClassification(c domain.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classification = c
}

// SetSuggestedTitle changes the AI title answer.
func (s *Server) SetSuggestedTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestedTitle = title
}

// Tickets returns the stored tickets.
func (s *Server) Tickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Ticket(nil), s.tickets...)
}

// Creates returns every accepted creation payload in arrival order.
func (s *Server) Creates() []domain.TicketPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TicketPayload(nil), s.creates...)
}

// Calls returns how many requests reached op, including failed ones.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) scripted(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[op]++
		status, scripted := s.popFailure(op)
		s.mu.Unlock()

		if !scripted {
			next(w, r)
			return
		}
		if status == DropConnection {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"detail": http.StatusText(status)})
	}
}

func (s *Server) popFailure(op string) (int, bool) {
	queue := s.failures[op]
	if len(queue) == 0 {
		return 0, false
	}
	if queue[0] < 0 {
		return -1 - queue[0], true
	}
	s.failures[op] = queue[1:]
	return queue[0], true
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var payload domain.TicketPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error."})
		return
	}
	if problems := payload.Validate(); problems != nil {
		body := map[string][]string{}
		for field, msg := range problems {
			body[field] = []string{msg.(string)}
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}

	s.mu.Lock()
	ticket := domain.Ticket{
		ID:           s.nextID,
		Title:        payload.Title,
		Description:  payload.Description,
		Category:     payload.Category,
		Priority:     payload.Priority,
		Status:       domain.TicketStatusOpen,
		Sentiment:    domain.TicketSentimentNeutral,
		UrgencyScore: 50,
		CreatedAt:    s.now(),
	}
	s.nextID++
	s.tickets = append(s.tickets, ticket)
	s.creates = append(s.creates, payload)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TicketFilter{
		Category: domain.TicketCategory(q.Get("category")),
		Priority: domain.TicketPriority(q.Get("priority")),
		Status:   domain.TicketStatus(q.Get("status")),
		Search:   q.Get("search"),
	}
	out := []domain.Ticket{}
	for _, t := range s.Tickets() {
		if filter.Matches(domain.FromRemote(t)) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
		return
	}
	var patch domain.TicketPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error."})
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"status": {"\"" + string(*patch.Status) + "\" is not a valid choice."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tickets {
		if s.tickets[i].ID != id {
			continue
		}
		if patch.Status != nil {
			s.tickets[i].Status = *patch.Status
		}
		if patch.Priority != nil {
			s.tickets[i].Priority = *patch.Priority
		}
		if patch.Category != nil {
			s.tickets[i].Category = *patch.Category
		}
		writeJSON(w, http.StatusOK, s.tickets[i])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	tickets := s.Tickets()
	stats := domain.Stats{
		TotalTickets:      len(tickets),
		PriorityBreakdown: map[domain.TicketPriority]int{},
		CategoryBreakdown: map[domain.TicketCategory]int{},
	}
	days := map[string]int{}
	for _, t := range tickets {
		if t.Status == domain.TicketStatusOpen {
			stats.OpenTickets++
		}
		stats.PriorityBreakdown[t.Priority]++
		stats.CategoryBreakdown[t.Category]++
		days[t.CreatedAt.Format(time.DateOnly)]++
	}
	if len(days) > 0 {
		stats.AvgTicketsPerDay = float64(len(tickets)) / float64(len(days))
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) classify(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	c := s.classification
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) suggestTitle(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	title := s.suggestedTitle
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"suggested_title": title})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
