package events

import "sync"

// Event names a published stream.
type Event string

const (
	// EventPriceTick carries common.PriceTick payloads from the market feed.
	EventPriceTick Event = "price_tick"
	// EventOrderUpdate carries bracket lifecycle updates (entry submitted,
	// entry filled, protective leg placed or failed).
	EventOrderUpdate Event = "order_update"
)

// Bus is a lightweight in-process pub/sub broker.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Event]map[int]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event]map[int]chan any)}
}

// Subscribe registers a listener and returns its channel plus an unsubscribe
// function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[e] == nil {
		b.subs[e] = make(map[int]chan any)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan any, buffer)
	b.subs[e][id] = ch

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[e][id]; ok {
			close(c)
			delete(b.subs[e], id)
		}
	}
	return ch, unsub
}

// Publish fans the payload out without blocking; slow subscribers drop
// messages rather than stalling the publisher.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
