package discovery

import "sync"

// DefaultChannelCapacity is used when NewEventChannel is given no capacity
const DefaultChannelCapacity = 1024

// EventChannel is the bounded hand-off between the bus dispatch goroutine
// and the bridge control loop. Senders never block.
type EventChannel struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewEventChannel creates a channel buffering up to capacity events
func NewEventChannel(capacity int) *EventChannel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &EventChannel{ch: make(chan Event, capacity)}
}

// TrySend queues e without blocking. It returns false when the channel is
// full or closed.
func (c *EventChannel) TrySend(e Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- e:
		return true
	default:
		return false
	}
}

// C returns the receive side. It is closed by Close once drained.
func (c *EventChannel) C() <-chan Event {
	return c.ch
}

// Len returns the number of queued events
func (c *EventChannel) Len() int {
	return len(c.ch)
}

// Close stops accepting events. It is safe to call multiple times.
func (c *EventChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
