package engine

import "sync"

type EventHandler func(Event)

// EventBus fans run lifecycle events out to synchronous subscribers.
// Handlers must not block; they run on the runner's goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish is safe on a nil bus.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}
