// Package events provides a small in-process pub/sub bus connecting the
// refresh orchestration to push consumers (the websocket stream).
package events

import (
	"sync"
	"time"
)

// EventType identifies a class of event.
type EventType string

const (
	// RecommendationUpdated fires after the engine recomputes for the
	// selected symbol.
	RecommendationUpdated EventType = "recommendation_updated"
	// UniverseUpdated fires after a fan-out pass replaces the ranked list.
	UniverseUpdated EventType = "universe_updated"
	// SnapshotUpdated fires after the selected symbol's snapshot feed refreshes.
	SnapshotUpdated EventType = "snapshot_updated"
	// SymbolSwitched fires when the selected symbol changes.
	SymbolSwitched EventType = "symbol_switched"
)

// Event is one published occurrence. Data is event-type specific and must be
// treated as read-only by handlers.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler receives published events. Handlers run on the publisher's
// goroutine and must not block; anything slow should hand off to a channel.
type Handler func(event *Event)

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish delivers an event to all handlers subscribed to its type.
func (b *Bus) Publish(t EventType, data interface{}) {
	event := &Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
