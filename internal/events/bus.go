// SPDX-License-Identifier: MIT

package events

import (
	"sync"
	"time"
)

// DefaultBufferSize is the bus's default channel capacity. Sized generously
// enough that a burst of progress events during a fast download does not
// back-pressure the recorder's parsing loop.
const DefaultBufferSize = 256

// Bus is a buffered, publish-only fan-out of Events to any number of
// subscribers. Publication never blocks the publisher: a subscriber that
// falls behind simply misses events rather than stalling the engine.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	now  func() time.Time
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Subscribe registers a new subscriber and returns its channel along with an
// unsubscribe function. The returned channel is closed by the unsubscribe
// function. The caller need not drain it: Publish is non-blocking, so an
// un-drained channel only fills its buffer and then misses later events.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, DefaultBufferSize)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// Publish fans an event out to every current subscriber. A subscriber whose
// buffer is full is skipped for this event rather than blocking the
// publisher; the event bus is explicitly best-effort (spec: "publication
// failures do not disrupt the engine").
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Timestamp: b.now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes and closes every subscriber channel. The Bus is unusable
// afterward.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
