// Package events provides the in-process publish/subscribe bus that
// carries supervision events (failures, recovery attempts, escalations)
// from the failure detector and recovery orchestrator to any number of
// subscribers without the publishers knowing who is listening.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a single published message on a topic.
type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// DefaultBuffer is the per-subscriber channel buffer used when
// Subscribe is called with a non-positive buffer size.
const DefaultBuffer = 128

type subscriber struct {
	id int64
	ch chan Event
}

// Bus is a topic-based fan-out bus. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
// Subscribers that care about completeness must drain promptly or
// subscribe with a larger buffer.
type Bus struct {
	mu      sync.RWMutex
	nextID  int64
	subs    map[string][]*subscriber
	dropped atomic.Int64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscriber),
	}
}

// Subscribe registers interest in a topic and returns the receive channel
// plus a cancel function. Cancel removes the subscription and closes the
// channel; it is safe to call more than once.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id: b.nextID,
		ch: make(chan Event, buffer),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

// Publish delivers the payload to every current subscriber of the topic.
// Returns the number of subscribers that received the event.
func (b *Bus) Publish(topic string, payload any) int {
	ev := Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// SubscriberCount returns the number of active subscriptions for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Dropped returns the total number of events dropped because a
// subscriber's buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
