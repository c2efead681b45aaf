package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maher4real/support-ticket-system/internal/events"
)

func TestDispatcher_DeliversToSubscribersOfType(t *testing.T) {
	d := events.NewInMemoryDispatcher(nil)

	var got []events.EventType
	d.Subscribe(events.EventTicketQueued, func(_ context.Context, e events.Event) error {
		got = append(got, e.Type)
		return errors.New("first handler fails")
	})
	d.Subscribe(events.EventTicketQueued, func(_ context.Context, e events.Event) error {
		got = append(got, e.Type)
		return nil
	})
	d.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		t.Fatal("unexpected delivery")
		return nil
	})

	ev := events.New(events.EventTicketQueued, time.Now(), events.TicketQueuedPayload{QueueID: "q-1"})
	require.NoError(t, d.Publish(context.Background(), ev))
	assert.Equal(t, []events.EventType{events.EventTicketQueued, events.EventTicketQueued}, got)
	assert.NotEmpty(t, ev.ID)
}

func TestDispatcher_IsolatesPanickingHandler(t *testing.T) {
	d := events.NewInMemoryDispatcher(nil)

	delivered := false
	d.Subscribe(events.EventQueueSynced, func(context.Context, events.Event) error {
		panic("boom")
	})
	d.Subscribe(events.EventQueueSynced, func(context.Context, events.Event) error {
		delivered = true
		return nil
	})

	ev := events.New(events.EventQueueSynced, time.Now(), events.QueueSyncedPayload{Synced: 1})
	assert.NotPanics(t, func() {
		require.NoError(t, d.Publish(context.Background(), ev))
	})
	assert.True(t, delivered)
}
