// Package eventbus is a typed in-process publish channel, per session,
// feeding the SSE Emitter. Events are persisted by the graph's own emit
// path, not through a bus subscription. It is non-blocking bounded: if a subscriber falls behind, events are dropped
// for that subscriber only, never for the producer.
package eventbus

import (
	"sync"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// Bus is a per-session pub/sub of WorkflowEvents. One Bus is created on run
// start and released on run terminal; there is no global mutable
// singleton.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan domain.WorkflowEvent
	nextID      int
	bufferSize  int
	closed      bool
}

// New creates a Bus with the given per-subscriber channel buffer size.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{subscribers: make(map[int]chan domain.WorkflowEvent), bufferSize: bufferSize}
}

// Subscribe returns a channel of events and an unsubscribe function. On a
// bus that is already closed it returns a closed channel.
func (b *Bus) Subscribe() (<-chan domain.WorkflowEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.WorkflowEvent, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
}

// Publish fans the event out to every current subscriber. A subscriber
// whose buffer is full has this event dropped for it; publish never
// blocks the producer.
func (b *Bus) Publish(evt domain.WorkflowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close releases the bus; any remaining subscriber channels are closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
