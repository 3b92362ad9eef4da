package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/app-chooser/internal/session"
)

// EventHub fans session events out to connected UI clients.
type EventHub struct {
	subs map[string]chan session.Event
	mu   sync.RWMutex
}

// NewEventHub creates an empty EventHub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]chan session.Event)}
}

// Publish delivers ev to every subscriber without blocking. A subscriber whose
// buffer is full misses the event.
func (h *EventHub) Publish(ev session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (h *EventHub) Subscribe() (string, <-chan session.Event) {
	id := uuid.New().String()
	ch := make(chan session.Event, 64)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Len returns the number of subscribers.
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
