// Package events carries run progress from the orchestrator to its
// consumers (console reporter, TUI, trace log) over a channel-based bus.
// Publishing never blocks: a consumer that stops draining loses events
// instead of stalling task execution.
package events

import (
	"sync"
)

const defaultBuffer = 256

// EventBus fans events out to topic subscribers and to SubscribeAll
// subscribers. The zero value is not usable; call NewEventBus.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events published to topic. The
// channel buffers bufSize events (defaultBuffer when bufSize <= 0) and is
// closed when the bus closes. Subscribing to a closed bus yields an
// already-closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := makeSub(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving every event regardless of topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := makeSub(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

func makeSub(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = defaultBuffer
	}
	return make(chan Event, bufSize)
}

// Publish delivers event to the topic's subscribers and to every
// SubscribeAll subscriber. Full channels drop the event rather than block.
// Publishing on a closed bus is a no-op.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	deliver(b.subs[topic], event)
	deliver(b.allSubs, event)
}

func deliver(chans []chan Event, event Event) {
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
