package connectivity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/connectivity"
	"github.com/maher4real/support-ticket-system/internal/events"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestMonitor_PublishesTransitionsOnly(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	var seen []bool
	dispatcher.Subscribe(events.EventConnectivityChanged, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Payload.(events.ConnectivityChangedPayload).Online)
		return nil
	})

	pinger := &fakePinger{}
	m := connectivity.NewMonitor(pinger, dispatcher, nil, nil)
	ctx := context.Background()

	assert.True(t, m.Online())
	assert.True(t, m.Probe(ctx))
	assert.Empty(t, seen)

	pinger.set(errors.New("connection refused"))
	assert.False(t, m.Probe(ctx))
	assert.False(t, m.Probe(ctx))
	assert.False(t, m.Online())

	pinger.set(nil)
	assert.True(t, m.Probe(ctx))
	assert.Equal(t, []bool{false, true}, seen)
}

func TestMonitor_RunProbesOnInterval(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	pinger := &fakePinger{err: errors.New("down")}
	m := connectivity.NewMonitor(pinger, nil, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Second)
		close(done)
	}()

	fake.WaitForPending(1)
	assert.False(t, m.Online())

	pinger.set(nil)
	fake.Advance(10 * time.Second)
	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
