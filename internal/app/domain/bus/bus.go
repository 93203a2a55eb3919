package bus

import (
	"errors"
	"krosty/internal/app/domain/chat"
	"sync"
)

var (
	ErrCursorClosed = errors.New("cursor closed")
	ErrBusClosed    = errors.New("bus closed")
)

const DefaultDepth = 1024

// Bus fans published events out to independent cursors. A slow cursor only
// loses its own oldest events.
type Bus struct {
	mu      sync.Mutex
	depth   int
	cursors map[*Cursor]struct{}
	closed  bool
	onDrop  func(n int)
}

type Option func(*Bus)

// WithDropHook is called with the number of events a publish evicted.
func WithDropHook(fn func(n int)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

func New(depth int, opts ...Option) *Bus {
	if depth <= 0 {
		depth = DefaultDepth
	}
	b := &Bus{
		depth:   depth,
		cursors: make(map[*Cursor]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a cursor that sees events published from now on.
func (b *Bus) Subscribe() *Cursor {
	c := &Cursor{
		bus:    b,
		buf:    make([]chat.Event, b.depth),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		c.busClosed = true
		return c
	}
	b.cursors[c] = struct{}{}
	return c
}

func (b *Bus) Publish(ev chat.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	dropped := 0
	for c := range b.cursors {
		if c.push(ev) {
			dropped++
		}
	}
	b.mu.Unlock()

	if dropped > 0 && b.onDrop != nil {
		b.onDrop(dropped)
	}
}

// Close stops publishing. Cursors drain what they hold and then report
// ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for c := range b.cursors {
		c.mu.Lock()
		c.busClosed = true
		c.mu.Unlock()
		c.wake()
	}
	b.cursors = nil
}

func (b *Bus) remove(c *Cursor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.cursors, c)
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.cursors)
}
