package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maher4real/support-ticket-system/internal/transport"
)

func fastRetry(attempts int) transport.RetryConfig {
	return transport.RetryConfig{MaxAttempts: attempts, BackoffStep: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestClient_DecodesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tickets/", r.URL.Path)
		assert.Equal(t, "billing", r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	client := transport.NewClient(server.URL + "/")
	var out struct {
		OK bool `json:"ok"`
	}
	err := client.Do(context.Background(), transport.Request{
		Op:     "list",
		Method: http.MethodGet,
		Path:   "/api/tickets/",
		Query:  map[string][]string{"category": {"billing"}},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestClient_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   transport.Outcome
	}{
		{http.StatusBadRequest, transport.OutcomePermanent},
		{http.StatusUnauthorized, transport.OutcomePermanent},
		{http.StatusForbidden, transport.OutcomePermanent},
		{http.StatusNotFound, transport.OutcomePermanent},
		{http.StatusConflict, transport.OutcomePermanent},
		{http.StatusUnprocessableEntity, transport.OutcomePermanent},
		{http.StatusRequestTimeout, transport.OutcomeTransient},
		{http.StatusTooEarly, transport.OutcomeTransient},
		{http.StatusTooManyRequests, transport.OutcomeTransient},
		{http.StatusInternalServerError, transport.OutcomeTransient},
		{http.StatusBadGateway, transport.OutcomeTransient},
		{http.StatusServiceUnavailable, transport.OutcomeTransient},
		{http.StatusGatewayTimeout, transport.OutcomeTransient},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := transport.NewClient(server.URL)
			err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/api/tickets/", Body: map[string]string{}}, nil)
			require.Error(t, err)
			assert.Equal(t, tc.want, transport.Classify(err))

			var te *transport.Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.status, te.StatusCode)
			assert.False(t, te.Timeout)
		})
	}
}

func TestClient_RetriesIdempotentReads(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL, transport.WithRetryConfig(fastRetry(3)))
	var out []any
	err := client.Do(context.Background(), transport.Request{Op: "list", Method: http.MethodGet, Path: "/", Idempotent: true}, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ReadGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := transport.NewClient(server.URL, transport.WithRetryConfig(fastRetry(2)))
	err := client.Do(context.Background(), transport.Request{Op: "stats", Method: http.MethodGet, Path: "/", Idempotent: true}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsTransient(err))
	assert.EqualValues(t, 2, calls.Load())

	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Attempts)
}

func TestClient_DoesNotRetryPermanentOrWrites(t *testing.T) {
	t.Run("permanent read", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, transport.WithRetryConfig(fastRetry(5)))
		err := client.Do(context.Background(), transport.Request{Op: "get", Method: http.MethodGet, Path: "/", Idempotent: true}, nil)
		assert.True(t, transport.IsPermanent(err))
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("transient write", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, transport.WithRetryConfig(fastRetry(5)))
		err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/", Body: map[string]string{"title": "x"}}, nil)
		assert.True(t, transport.IsTransient(err))
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := transport.NewClient(server.URL)
	err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/", Timeout: 20 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsTransient(err))
	assert.True(t, transport.IsTimeout(err))
}

func TestClient_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := transport.NewClient(url)
	err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/"}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsTransient(err))
	assert.False(t, transport.IsTimeout(err))
}

func TestClient_CallerCancellationStopsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := transport.NewClient(server.URL, transport.WithRetryConfig(fastRetry(5)))
	err := client.Do(ctx, transport.Request{Op: "list", Method: http.MethodGet, Path: "/", Idempotent: true}, nil)
	require.Error(t, err)
	assert.True(t, transport.IsTransient(err))
	assert.False(t, transport.IsTimeout(err))
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestClient_PermanentFailureCarriesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"title":["Ensure this field has no more than 200 characters."],"description":["This field may not be blank."]}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)
	err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/"}, nil)
	assert.Equal(t, "Ensure this field has no more than 200 characters.", transport.MessageOf(err))
}

func TestClient_MalformedSuccessBodyIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)
	var out map[string]any
	err := client.Do(context.Background(), transport.Request{Op: "create", Method: http.MethodPost, Path: "/"}, &out)
	assert.True(t, transport.IsPermanent(err))
}
