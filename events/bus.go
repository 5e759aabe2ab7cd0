package events

import (
	"sync"
	"sync/atomic"
)

// Handler receives published events.
type Handler func(Event)

// Bus fans events out to subscribers synchronously, in the order they
// subscribed. Events are not retained: a subscriber only sees events
// published after it subscribed.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is a registered handler. Unsubscribe detaches it.
type Subscription struct {
	bus     *Bus
	handler Handler
	active  atomic.Bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every event published from now on.
func (b *Bus) Subscribe(h Handler) *Subscription {
	s := &Subscription{bus: b, handler: h}
	s.active.Store(true)
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Unsubscribe stops delivery to the subscription. It is safe to call more
// than once and from inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every active subscriber before returning.
// Handlers may publish or unsubscribe re-entrantly.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(ev)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// On registers fn for a single event variant.
func On[T Event](b *Bus, fn func(T)) *Subscription {
	return b.Subscribe(func(ev Event) {
		if v, ok := ev.(T); ok {
			fn(v)
		}
	})
}
