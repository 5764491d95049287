// Package bus is the in-process publish/subscribe register that fans
// classified events out to presence, notification, window and tray
// consumers.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/appleblox/gamewatch/internal/rules"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Handler consumes one event. A returned error (or a panic) is logged for
// that handler alone and never reaches the publisher.
type Handler func(ev rules.Event) error

// Subscription identifies one registered handler. The zero value is not a
// valid subscription.
type Subscription struct {
	id   uint64
	name string
}

// Name returns the event name (or Wildcard) the subscription listens to.
func (s Subscription) Name() string { return s.name }

type entry struct {
	id      uint64
	name    string
	handler Handler
}

// Bus dispatches synchronously, in registration order, with no queue:
// events published before a subscription exists are never delivered to it.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
	nextID  uint64
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "bus")}
}

// Subscribe registers handler for events named name, or all events when
// name is Wildcard.
func (b *Bus) Subscribe(name string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	e := entry{id: b.nextID, name: name, handler: handler}
	// Copy-on-write: Publish iterates a snapshot of the previous slice.
	entries := make([]entry, len(b.entries), len(b.entries)+1)
	copy(entries, b.entries)
	b.entries = append(entries, e)
	return Subscription{id: e.id, name: name}
}

// Unsubscribe removes sub. It reports whether sub was registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id != sub.id {
			continue
		}
		entries := make([]entry, 0, len(b.entries)-1)
		entries = append(entries, b.entries[:i]...)
		b.entries = append(entries, b.entries[i+1:]...)
		return true
	}
	return false
}

// Publish delivers ev to every matching handler in registration order.
func (b *Bus) Publish(ev rules.Event) {
	b.mu.RLock()
	entries := b.entries
	b.mu.RUnlock()

	for _, e := range entries {
		if e.name != Wildcard && e.name != ev.Name {
			continue
		}
		if err := b.call(e, ev); err != nil {
			b.logger.Warn("event handler failed",
				"event", ev.Name,
				"subscription", e.id,
				"error", err)
		}
	}
}

// PublishAll publishes events in slice order.
func (b *Bus) PublishAll(events []rules.Event) {
	for _, ev := range events {
		b.Publish(ev)
	}
}

// Len returns the number of registered subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Bus) call(e entry, ev rules.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return e.handler(ev)
}
