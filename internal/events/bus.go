// Package events carries best-effort change notifications between the
// engine and its observers (projections, the dashboard). Delivery is
// never guaranteed: a slow subscriber drops events rather than blocking
// a writer, and consumers that need exact state reread the store.
package events

import (
	"sync"
	"time"
)

// Event kinds published by the engine.
const (
	HabitCreated           = "habit_created"
	HabitUpdated           = "habit_updated"
	HabitDeleted           = "habit_deleted"
	HabitCompletionUpdated = "habit_completion_updated"
	SyncCompleted          = "sync_completed"
	OutboxParked           = "outbox_parked"
)

// Event is one change notification. Payload is kind-specific and small:
// record ids and summary counts, never full rows.
type Event struct {
	Kind    string         `json:"kind"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Bus fans events out to subscribers. The zero value is not usable;
// call NewBus.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer and
// returns the channel plus a cancel func. After cancel returns the
// channel is closed and receives nothing further.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber whose buffer has room
// and silently drops it for the rest.
func (b *Bus) Publish(kind string, payload map[string]any) {
	ev := Event{Kind: kind, At: time.Now().UTC(), Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
