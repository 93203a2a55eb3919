package pusher

import (
	"context"
	"fmt"
	"github.com/gorilla/websocket"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	DefaultURL = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=8.4.0&flash=false"

	maxFrameSize = 1 << 20
	writeTimeout = 10 * time.Second
)

// Dialer opens Pusher websocket connections.
type Dialer struct {
	log    logger.Logger
	url    string
	dialer websocket.Dialer
}

// NewDialer builds a dialer for url. netDial may route through a proxy; nil
// dials directly.
func NewDialer(log logger.Logger, url string, netDial func(ctx context.Context, network, addr string) (net.Conn, error)) *Dialer {
	if url == "" {
		url = DefaultURL
	}
	return &Dialer{
		log: log,
		url: url,
		dialer: websocket.Dialer{
			NetDialContext:   netDial,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   16 << 10,
			WriteBufferSize:  4 << 10,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context) (ports.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			if cerr := resp.Body.Close(); cerr != nil {
				d.log.Error("Failed to close response body", cerr)
			}
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	ws.SetReadLimit(maxFrameSize)

	d.log.Debug("Connected to Pusher", slog.String("remote", ws.RemoteAddr().String()))
	return &conn{ws: ws}, nil
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *conn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *conn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
