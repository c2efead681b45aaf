package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/syncer"
)

// Syncer runs a queue flush.
type Syncer interface {
	Trigger(ctx context.Context, reason syncer.Reason) syncer.Result
}

// Refresher reloads the read views.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SyncTriggers runs flushes in response to pipeline events. Flushes run
// in the background so publishers are never blocked by the network.
type SyncTriggers struct {
	ctx       context.Context
	syncer    Syncer
	refresher Refresher
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// RegisterSyncTriggers subscribes flushes to queued tickets, successful
// writes and reconnects. refresher may be nil. Work stops when ctx ends.
func RegisterSyncTriggers(ctx context.Context, dispatcher events.Dispatcher, s Syncer, refresher Refresher, logger *zap.Logger) *SyncTriggers {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &SyncTriggers{ctx: ctx, syncer: s, refresher: refresher, logger: logger}
	dispatcher.Subscribe(events.EventTicketQueued, t.on(syncer.ReasonEnqueued))
	dispatcher.Subscribe(events.EventTicketCreated, t.on(syncer.ReasonWrite))
	dispatcher.Subscribe(events.EventTicketUpdated, t.on(syncer.ReasonWrite))
	dispatcher.Subscribe(events.EventConnectivityChanged, t.handleConnectivityChanged)
	return t
}

// Wait blocks until background flushes finish. Callers must not publish
// concurrently; use Close on shutdown.
func (t *SyncTriggers) Wait() {
	t.wg.Wait()
}

// Close stops reacting to events and waits for running flushes.
func (t *SyncTriggers) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *SyncTriggers) on(reason syncer.Reason) events.EventHandler {
	return func(context.Context, events.Event) error {
		t.run(reason, false)
		return nil
	}
}

func (t *SyncTriggers) handleConnectivityChanged(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ConnectivityChangedPayload)
	if !ok || !p.Online {
		return nil
	}
	t.run(syncer.ReasonReconnect, true)
	return nil
}

func (t *SyncTriggers) run(reason syncer.Reason, refresh bool) {
	t.mu.Lock()
	if t.closed || t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.wg.Done()
		res := t.syncer.Trigger(t.ctx, reason)
		if res.Skipped {
			t.logger.Debug("sync already running", zap.String("reason", string(reason)))
		}
		if refresh && t.refresher != nil {
			if err := t.refresher.Refresh(t.ctx); err != nil {
				t.logger.Debug("refresh after reconnect failed", zap.Error(err))
			}
		}
	}()
}

// RunSyncLoop flushes once at startup and then every interval until ctx
// is done.
func RunSyncLoop(ctx context.Context, s Syncer, clk clock.Clock, interval time.Duration, logger *zap.Logger) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s.Trigger(ctx, syncer.ReasonStartup)

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("sync loop stopped")
			return
		case <-ticker.C():
			s.Trigger(ctx, syncer.ReasonInterval)
		}
	}
}
