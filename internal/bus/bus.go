// Package bus fans run events out to subscribers.
package bus

import (
	"sync"
)

// Event is one run progress notification.
type Event struct {
	Name    string `json:"name"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload,omitempty"`
}

// EventHandler receives broadcast events. Handlers run on the broadcasting
// goroutine and should not block.
type EventHandler func(Event)

// EventBus delivers every event to all subscribers in subscription order.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]EventHandler
	order       []string
	delivered   int64
}

func New() *EventBus {
	return &EventBus{subscribers: make(map[string]EventHandler)}
}

// Subscribe registers handler under id, replacing any handler already
// registered with that id.
func (b *EventBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[id]; !ok {
		b.order = append(b.order, id)
	}
	b.subscribers[id] = handler
}

// Unsubscribe removes a subscriber.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[id]; !ok {
		return
	}
	delete(b.subscribers, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Broadcast sends event to all subscribers.
func (b *EventBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	b.mu.Lock()
	b.delivered++
	b.mu.Unlock()
}

// Subscribers returns the number of registered handlers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Delivered returns how many events have been broadcast.
func (b *EventBus) Delivered() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.delivered
}
