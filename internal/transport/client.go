// Package transport issues requests to the ticket service with a
// per-attempt timeout, classifies every failure as transient or
// permanent, and retries idempotent reads with linear backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/observability"
)

// maxResponseSize limits a response body.
const maxResponseSize = 4 * 1024 * 1024

// DefaultTimeout applies when a request sets none.
const DefaultTimeout = 10 * time.Second

// Request describes one logical call.
type Request struct {
	// Op names the operation for logs and metrics.
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Idempotent requests are retried on transient failure. Writes are
	// attempted exactly once.
	Idempotent bool

	// Timeout bounds each attempt.
	Timeout time.Duration
}

// Client talks to the ticket service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig sets the read retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithClock sets the clock used for backoff waits.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records call outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retry:      DefaultRetryConfig(),
		clock:      clock.Real(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and decodes a successful JSON response into out
// (which may be nil). Failures are returned as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var body []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return &Error{Op: req.Op, Outcome: OutcomePermanent, Message: "invalid request body", Err: err}
		}
		body = encoded
	}

	attempts := 1
	if req.Idempotent {
		attempts = c.retry.Attempts()
	}

	start := time.Now()
	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.attempt(ctx, req, body, out)
		if err == nil {
			c.metrics.RecordRemoteCall(req.Op, OutcomeSuccess.String(), time.Since(start))
			return nil
		}
		err.Attempts = attempt
		lastErr = err

		if err.Outcome == OutcomePermanent || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			backoff := c.retry.Backoff(attempt)
			c.logger.Debug("request failed, retrying",
				zap.String("op", req.Op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			c.metrics.RecordRetry(req.Op)

			select {
			case <-ctx.Done():
				lastErr = &Error{Op: req.Op, Outcome: OutcomeTransient, Attempts: attempt, Err: ctx.Err()}
				attempt = attempts
			case <-c.clock.After(backoff):
			}
		}
	}

	c.metrics.RecordRemoteCall(req.Op, lastErr.Outcome.String(), time.Since(start))
	c.logger.Debug("request failed",
		zap.String("op", req.Op),
		zap.String("outcome", lastErr.Outcome.String()),
		zap.Bool("timeout", lastErr.Timeout),
		zap.Int("status", lastErr.StatusCode),
		zap.Int("attempts", lastErr.Attempts))
	return lastErr
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte, out any) *Error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, target, reader)
	if err != nil {
		return &Error{Op: req.Op, Outcome: OutcomePermanent, Message: "invalid request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.networkError(ctx, attemptCtx, req.Op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return c.networkError(ctx, attemptCtx, req.Op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyHTTPError(req.Op, resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{
			Op:         req.Op,
			Outcome:    OutcomePermanent,
			StatusCode: resp.StatusCode,
			Message:    "Unexpected response from server.",
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// networkError classifies a failure below HTTP. An expired attempt
// deadline is a timeout; anything else (including caller cancellation)
// is a plain transient failure.
func (c *Client) networkError(parent, attemptCtx context.Context, op string, err error) *Error {
	timedOut := parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	msg := "Unable to reach the ticket service."
	if timedOut {
		msg = "The ticket service took too long to respond."
	}
	return &Error{Op: op, Outcome: OutcomeTransient, Timeout: timedOut, Message: msg, Err: err}
}
