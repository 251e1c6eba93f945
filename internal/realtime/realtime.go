// Package realtime broadcasts domain events to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const EventSaleCreated = "sale.created"

type Event struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewEvent(eventType string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Data: data, OccurredAt: at.UTC()}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber hands out a channel of events and a cancel func that must be
// called to release it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

type Broker interface {
	Publisher
	Subscriber
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error {
	return nil
}

// Hub fans events out inside one process. Sends never block: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	next   int
	buffer int
	subs   map[int]chan Event
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{buffer: buffer, subs: make(map[int]chan Event)}
}

func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
