// Package bus fans store notifications out to in-process listeners.
// Delivery is fire-and-forget: a slow subscriber loses events instead of
// blocking the writer that produced them.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher is the emitting half of a Bus.
type Publisher interface {
	Publish(evt Event)
}

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	dropped atomic.Uint64
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers evt to every subscriber whose namespace is a prefix of
// evt.Kind. A zero timestamp is set to now.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit publishes kind with payload stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. The returned function unsubscribes and
// may be called more than once.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	sub := &subscription{namespace: namespace, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}
}

// Dropped counts deliveries skipped because a subscriber's buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Nop discards everything published to it.
type Nop struct{}

func (Nop) Publish(Event) {}
