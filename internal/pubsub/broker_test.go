package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return Event[T]{}
	}
}

func TestBroker_FanOut(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx := context.Background()
	a := broker.Subscribe(ctx)
	b := broker.Subscribe(ctx)
	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(CreatedEvent, "manager started")

	for _, ch := range []<-chan Event[string]{a, b} {
		ev := recvOne(t, ch)
		assert.Equal(t, "manager started", ev.Payload)
		assert.Equal(t, CreatedEvent, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_CancelledSubscriberDetaches(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroker_FullSubscriberNeverBlocksPublish(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	broker.Publish(UpdatedEvent, 1)

	done := make(chan struct{})
	go func() {
		broker.Publish(UpdatedEvent, 2)
		broker.Publish(UpdatedEvent, 3)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Overflow was dropped, not queued.
	assert.Equal(t, 1, recvOne(t, ch).Payload)
}

func TestBroker_CloseIsTerminalAndIdempotent(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()

	ch := broker.Subscribe(ctx)
	broker.Close()
	broker.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, broker.SubscriberCount())

	late := broker.Subscribe(ctx)
	_, open = <-late
	assert.False(t, open)

	broker.Publish(UpdatedEvent, "ignored")
}
