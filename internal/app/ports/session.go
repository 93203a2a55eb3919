package ports

import (
	"context"
	"krosty/internal/app/domain/chat"
)

// Conn is one realtime connection carrying text frames.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type EventPublisher interface {
	Publish(ev chat.Event)
}
