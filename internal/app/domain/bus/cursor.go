package bus

import (
	"context"
	"krosty/internal/app/domain/chat"
	"sync"
)

// Cursor is one consumer's ring buffer over the bus.
type Cursor struct {
	bus *Bus

	mu        sync.Mutex
	buf       []chat.Event
	head      int
	size      int
	dropped   int
	closed    bool
	busClosed bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// push appends ev, evicting the oldest event when full. It reports whether
// an event was evicted.
func (c *Cursor) push(ev chat.Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	evicted := false
	if c.size == len(c.buf) {
		c.buf[c.head] = nil
		c.head = (c.head + 1) % len(c.buf)
		c.size--
		c.dropped++
		evicted = true
	}
	c.buf[(c.head+c.size)%len(c.buf)] = ev
	c.size++
	c.mu.Unlock()

	c.wake()
	return evicted
}

func (c *Cursor) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Poll returns up to max buffered events without blocking. When events were
// dropped for this cursor since the last poll, an Overflow marker comes
// first and counts toward max.
func (c *Cursor) Poll(max int) []chat.Event {
	if max <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.takeLocked(max)
}

func (c *Cursor) takeLocked(max int) []chat.Event {
	if c.closed || (c.size == 0 && c.dropped == 0) {
		return nil
	}

	n := c.size
	if c.dropped > 0 {
		n++
	}
	if n > max {
		n = max
	}

	out := make([]chat.Event, 0, n)
	if c.dropped > 0 {
		out = append(out, chat.Overflow{Dropped: c.dropped})
		c.dropped = 0
	}
	for len(out) < n {
		out = append(out, c.buf[c.head])
		c.buf[c.head] = nil
		c.head = (c.head + 1) % len(c.buf)
		c.size--
	}
	return out
}

// Next blocks until at least one event is available, the context ends, or
// the cursor or bus is closed.
func (c *Cursor) Next(ctx context.Context, max int) ([]chat.Event, error) {
	if max <= 0 {
		max = 1
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrCursorClosed
		}
		if out := c.takeLocked(max); len(out) > 0 {
			c.mu.Unlock()
			return out, nil
		}
		if c.busClosed {
			c.mu.Unlock()
			return nil, ErrBusClosed
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pending is the number of events waiting in the buffer.
func (c *Cursor) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

func (c *Cursor) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.buf = nil
		c.size = 0
		c.mu.Unlock()

		close(c.done)
		c.bus.remove(c)
	})
}
