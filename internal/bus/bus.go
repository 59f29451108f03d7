// Package bus is the in-process publish/subscribe layer decoupling store
// writers from the realtime fan-out.
package bus

import (
	"strings"
	"sync"
)

// Bus delivers events to subscribers whose namespace prefixes the event
// kind. Delivery is non-blocking: a full subscriber buffer drops the
// event rather than stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

type subscriber struct {
	namespace string
	ch        chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish sends evt to every subscriber whose namespace is a prefix of
// evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers a subscriber for the given namespace prefix and
// returns its channel plus an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
