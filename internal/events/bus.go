// Package events is the typed observer list collaborators (UI, game-mode
// logic, the admin API) subscribe to.
package events

import (
	"sync"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
}

// Token identifies a subscription.
type Token uint64

type subscription struct {
	token Token
	fn    func(Event)
}

// Bus fans events out to subscribers in subscription order. Handlers run
// on the publishing goroutine, which for session events is the control
// thread.
type Bus struct {
	mu   sync.RWMutex
	next Token
	subs []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every event.
func (b *Bus) Subscribe(fn func(Event)) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscription{token: b.next, fn: fn})
	return b.next
}

// Unsubscribe removes a subscription. It reports whether the token was live.
func (b *Bus) Unsubscribe(t Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.token == t {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e to a snapshot of the current subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(e)
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// On subscribes fn to events of type T only.
func On[T Event](b *Bus, fn func(T)) Token {
	return b.Subscribe(func(e Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}
