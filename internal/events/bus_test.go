package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	ch1, cancel1 := bus.Subscribe("topic-a", 4)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe("topic-a", 4)
	defer cancel2()

	delivered := bus.Publish("topic-a", "payload")
	assert.Equal(t, 2, delivered)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "topic-a", ev.Topic)
			assert.Equal(t, "payload", ev.Payload)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}
}

func TestPublishIsTopicScoped(t *testing.T) {
	bus := NewBus()

	chA, cancelA := bus.Subscribe("topic-a", 4)
	defer cancelA()
	_, cancelB := bus.Subscribe("topic-b", 4)
	defer cancelB()

	assert.Equal(t, 1, bus.Publish("topic-a", 1))
	assert.Equal(t, 0, bus.Publish("topic-c", 2))

	select {
	case ev := <-chA:
		assert.Equal(t, 1, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected event on topic-a")
	}
}

func TestCancelRemovesSubscriberAndClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe("topic-a", 4)
	require.Equal(t, 1, bus.SubscriberCount("topic-a"))

	cancel()
	assert.Equal(t, 0, bus.SubscriberCount("topic-a"))

	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")

	// Cancel is safe to call twice.
	cancel()

	assert.Equal(t, 0, bus.Publish("topic-a", "dropped"))
}

func TestFullSubscriberDropsAndCounts(t *testing.T) {
	bus := NewBus()

	_, cancel := bus.Subscribe("topic-a", 1)
	defer cancel()

	assert.Equal(t, 1, bus.Publish("topic-a", 1))
	// Buffer of one is now full; the next publish drops.
	assert.Equal(t, 0, bus.Publish("topic-a", 2))
	assert.Equal(t, int64(1), bus.Dropped())
}

func TestDefaultBufferApplied(t *testing.T) {
	bus := NewBus()

	_, cancel := bus.Subscribe("topic-a", 0)
	defer cancel()

	for i := 0; i < DefaultBuffer; i++ {
		require.Equal(t, 1, bus.Publish("topic-a", i))
	}
	assert.Equal(t, 0, bus.Publish("topic-a", "overflow"))
}
