package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(4, zerolog.Nop())
	ch1 := bus.Subscribe(EventTypeMarketData)
	ch2 := bus.Subscribe(EventTypeMarketData)

	event := NewMarketDataEvent("SPY", 100, 101, 99, 100.5, 1000, time.Now())
	bus.Publish(context.Background(), event)

	select {
	case got := <-ch1:
		assert.Same(t, event, got)
	default:
		t.Fatal("expected event on ch1")
	}

	select {
	case got := <-ch2:
		assert.Same(t, event, got)
	default:
		t.Fatal("expected event on ch2")
	}
}

func TestPublish_NoSubscribersIsNoOp(t *testing.T) {
	bus := NewEventBus(4, zerolog.Nop())
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), NewMarketDataEvent("SPY", 1, 1, 1, 1, 1, time.Now()))
	})
}

// Publish is non-blocking: once a subscriber's buffer is full, further
// events for that subscriber are dropped rather than blocking the sender.
func TestPublish_DropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewEventBus(1, zerolog.Nop())
	ch := bus.Subscribe(EventTypeSignal)

	first := NewSignalEvent("s1", "SPY", "BUY", 1.0, 100, 10, "first")
	second := NewSignalEvent("s1", "SPY", "BUY", 1.0, 101, 10, "second")

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), first)
		bus.Publish(context.Background(), second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	got := <-ch
	assert.Same(t, first, got)

	select {
	case <-ch:
		t.Fatal("second event should have been dropped, not buffered")
	default:
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := NewEventBus(4, zerolog.Nop())
	assert.Equal(t, 0, bus.SubscriberCount(EventTypeMarketData))

	bus.Subscribe(EventTypeMarketData)
	bus.Subscribe(EventTypeMarketData)
	assert.Equal(t, 2, bus.SubscriberCount(EventTypeMarketData))
}

func TestPublishBlocking_DeliversAndReturnsNilOnSuccess(t *testing.T) {
	bus := NewEventBus(1, zerolog.Nop())
	ch := bus.Subscribe(EventTypeSignal)

	event := NewSignalEvent("s1", "SPY", "SELL", 1.0, 100, 10, "exit")
	require.NoError(t, bus.PublishBlocking(context.Background(), event))

	got := <-ch
	assert.Same(t, event, got)
}

func TestUnsubscribe_RemovesSubscriberAndClosesChannel(t *testing.T) {
	bus := NewEventBus(4, zerolog.Nop())
	ch := bus.Subscribe(EventTypeMarketData)

	bus.Unsubscribe(EventTypeMarketData, ch)
	assert.Equal(t, 0, bus.SubscriberCount(EventTypeMarketData))

	_, open := <-ch
	assert.False(t, open)
}
