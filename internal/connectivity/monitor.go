// Package connectivity tracks whether the ticket service is reachable
// and announces transitions on the event dispatcher.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/events"
)

// Pinger checks reachability of the ticket service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor holds the online/offline signal.
type Monitor struct {
	mu         sync.Mutex
	online     bool
	pinger     Pinger
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// NewMonitor creates a monitor that starts online. dispatcher may be nil.
func NewMonitor(pinger Pinger, dispatcher events.Dispatcher, clk clock.Clock, logger *zap.Logger) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{online: true, pinger: pinger, dispatcher: dispatcher, clock: clk, logger: logger}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the state and publishes EventConnectivityChanged on a
// transition. It reports whether the state changed.
func (m *Monitor) Set(ctx context.Context, online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	if m.dispatcher != nil {
		_ = m.dispatcher.Publish(ctx, events.New(events.EventConnectivityChanged, m.clock.Now(),
			events.ConnectivityChangedPayload{Online: online}))
	}
	return true
}

// Probe pings the service once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	err := m.pinger.Ping(ctx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("connectivity probe failed", zap.Error(err))
	}
	m.Set(ctx, err == nil)
	return err == nil
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.Probe(ctx)
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.Probe(ctx)
		}
	}
}
