// SPDX-License-Identifier: Apache-2.0

package events

import (
	"log/slog"
	"sync"

	"github.com/adiadia/prompt-runner/internal/domain"
)

const subscriberBuffer = 64

// Bus fans lifecycle events out to subscribers. Publish never blocks
// the execution path: a subscriber that falls behind its buffer loses
// events rather than stalling the engine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan domain.Event, 4),
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func must
// be called to release the channel; after cancel the channel is closed.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan domain.Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has room.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"subscriber", id,
				"type", ev.Type,
				"execution_id", ev.ExecutionID,
			)
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
