package session

import (
	"context"
	"errors"
	"fmt"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"io"
	"krosty/internal/app/domain/bus"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/token"
	"krosty/internal/app/infrastructure/backoff"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	handshakeFrame  = `{"event":"pusher:connection_established","data":"{\"socket_id\":\"1.2\",\"activity_timeout\":120}"}`
	subscribedFrame = `{"event":"pusher_internal:subscription_succeeded","channel":"chatrooms.2.v2","data":"{}"}`
	messageFrame    = `{"event":"App\\Events\\ChatMessageEvent","channel":"chatrooms.2.v2","data":"{\"id\":\"m1\",\"chatroom_id\":2,\"content\":\"hello\",\"type\":\"message\",\"sender\":{\"id\":42,\"username\":\"Bob\",\"slug\":\"bob\"}}"}`
)

var errClosed = errors.New("use of closed connection")

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case b := <-c.in:
		if b == nil {
			return nil, io.EOF
		}
		return b, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteFrame(b []byte) error {
	select {
	case <-c.closed:
		return errClosed
	case c.out <- b:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(frame string) {
	c.in <- []byte(frame)
}

// hangUp makes the reader see io.EOF once every frame sent before it is read.
func (c *fakeConn) hangUp() {
	c.in <- nil
}

func (c *fakeConn) expectWrite(t *testing.T, substr string) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case b := <-c.out:
			if strings.Contains(string(b), substr) {
				return
			}
		case <-timeout:
			t.Fatalf("no frame containing %q was written", substr)
		}
	}
}

type fakeDialer struct {
	conns chan *fakeConn
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context) (ports.Conn, error) {
	d.dials.Add(1)
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeResolver struct{}

func (fakeResolver) ResolveChannel(_ context.Context, slug chat.ChannelID) (ports.ChannelInfo, error) {
	return ports.ChannelInfo{Slug: slug, ChannelID: 1, ChatroomID: 2, BroadcasterUserID: 7}, nil
}

type fakeAPI struct {
	mu          sync.Mutex
	validateErr error
	performErr  error
	validated   []string
	performed   []chat.Action
	performedBy []string
}

func (a *fakeAPI) ValidateToken(_ context.Context, tok string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.validated = append(a.validated, tok)
	return a.validateErr
}

func (a *fakeAPI) Perform(_ context.Context, tok string, _ ports.ChannelInfo, action chat.Action) (chat.Ack, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.performed = append(a.performed, action)
	a.performedBy = append(a.performedBy, tok)
	if a.performErr != nil {
		return chat.Ack{}, a.performErr
	}
	return chat.Ack{MessageID: "sent-1"}, nil
}

func (a *fakeAPI) setValidateErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validateErr = err
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.performed)
}

type harness struct {
	clock  *clockwork.FakeClock
	dialer *fakeDialer
	api    *fakeAPI
	tokens *token.Store
	cursor *bus.Cursor
	engine *Engine
}

func newHarness(t *testing.T, limiter *rate.Limiter) *harness {
	t.Helper()

	h := &harness{
		clock:  clockwork.NewFakeClock(),
		dialer: &fakeDialer{conns: make(chan *fakeConn, 4)},
		api:    &fakeAPI{},
		tokens: token.NewStore(),
	}
	b := bus.New(256)
	h.cursor = b.Subscribe()

	h.engine = NewEngine(Config{
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		ConnectTimeout:    10 * time.Second,
		SendTimeout:       5 * time.Second,
		Backoff:           backoff.Policy{Base: time.Second, Max: 10 * time.Second},
	}, Deps{
		Log:       logger.NewNop(),
		Dialer:    h.dialer,
		Resolver:  fakeResolver{},
		API:       h.api,
		Tokens:    h.tokens,
		Publisher: b,
		Limiter:   limiter,
		Clock:     h.clock,
	})
	t.Cleanup(h.engine.Shutdown)

	return h
}

func (h *harness) open(t *testing.T) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	h.dialer.conns <- conn
	s, err := h.engine.Open("xqc")
	require.NoError(t, err)
	return s, conn
}

// waitState consumes events until the session reports the given phase.
func (h *harness) waitState(t *testing.T, phase chat.Phase) chat.SessionState {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		evs, err := h.cursor.Next(ctx, 1)
		require.NoError(t, err, "waiting for %s", phase)
		for _, ev := range evs {
			if st, ok := ev.(chat.ConnectionStatusChanged); ok && st.State.Phase == phase {
				return st.State
			}
		}
	}
}

func (h *harness) waitMessage(t *testing.T) chat.MessageReceived {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		evs, err := h.cursor.Next(ctx, 1)
		require.NoError(t, err, "waiting for a message")
		for _, ev := range evs {
			if m, ok := ev.(chat.MessageReceived); ok {
				return m
			}
		}
	}
}

func (h *harness) goLive(t *testing.T, conn *fakeConn) {
	t.Helper()

	conn.send(handshakeFrame)
	conn.expectWrite(t, `"chatrooms.2.v2"`)
	conn.send(subscribedFrame)
	h.waitState(t, chat.PhaseLive)
}

func TestSession_LiveDropReconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s, conn := h.open(t)

	h.waitState(t, chat.PhaseConnecting)
	h.goLive(t, conn)
	assert.Equal(t, chat.PhaseLive, s.State().Phase)

	conn.send(messageFrame)
	msg := h.waitMessage(t)
	assert.Equal(t, chat.ChannelID("xqc"), msg.Channel)
	assert.Equal(t, "m1", msg.Message.ID)

	conn.Close()
	st := h.waitState(t, chat.PhaseReconnecting)
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, chat.CauseTransport, st.Cause)
	assert.True(t, st.NextRetryAt.Equal(h.clock.Now().Add(time.Second)))

	_, err := s.Send(context.Background(), chat.SendMessage("hi"))
	assert.ErrorIs(t, err, chat.ErrDisconnected)
	assert.Zero(t, h.api.calls())

	next := newFakeConn()
	h.dialer.conns <- next
	h.clock.Advance(time.Second)

	st = h.waitState(t, chat.PhaseConnecting)
	assert.Equal(t, 1, st.Attempt)
	h.goLive(t, next)
	assert.EqualValues(t, 2, h.dialer.dials.Load())
}

func TestSession_BurstBeforeDropIsPublished(t *testing.T) {
	t.Parallel()

	const burst = 30

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)

	for i := 0; i < burst; i++ {
		conn.send(strings.Replace(messageFrame, `m1`, fmt.Sprintf("m%d", i), 1))
	}
	conn.hangUp()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ids []string
	for reconnecting := false; !reconnecting; {
		evs, err := h.cursor.Next(ctx, burst)
		require.NoError(t, err)
		for _, ev := range evs {
			switch e := ev.(type) {
			case chat.MessageReceived:
				require.False(t, reconnecting, "message published after the drop")
				ids = append(ids, e.Message.ID)
			case chat.ConnectionStatusChanged:
				if e.State.Phase == chat.PhaseReconnecting {
					assert.Equal(t, chat.CauseTransport, e.State.Cause)
					reconnecting = true
				}
			}
		}
	}

	require.Len(t, ids, burst)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("m%d", i), id)
	}
}

func TestSession_BackoffGrows(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)
	conn.Close()

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		st := h.waitState(t, chat.PhaseReconnecting)
		delay := st.NextRetryAt.Sub(h.clock.Now())
		delays = append(delays, delay)

		// the next dial fails right away
		failing := newFakeConn()
		failing.Close()
		h.dialer.conns <- failing
		h.clock.Advance(delay)
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestSession_ServerPingGetsPong(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)

	conn.send(`{"event":"pusher:ping","data":{}}`)
	conn.expectWrite(t, "pusher:pong")
}

func TestSession_HeartbeatTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)

	h.clock.Advance(10 * time.Second)
	conn.expectWrite(t, "pusher:ping")

	h.clock.Advance(5 * time.Second)
	st := h.waitState(t, chat.PhaseReconnecting)
	assert.Equal(t, chat.CauseHeartbeat, st.Cause)
	assert.Equal(t, 1, st.Attempt)
}

func TestSession_AuthPauseUntilNewToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.tokens.Set("stale"))
	h.api.setValidateErr(chat.ErrUnauthenticated)

	s, conn := h.open(t)
	conn.send(handshakeFrame)

	st := h.waitState(t, chat.PhaseReconnecting)
	assert.True(t, st.Paused())
	assert.Equal(t, chat.CauseAuth, st.Cause)
	assert.True(t, h.tokens.NeedsReauth())

	_, err := s.Send(context.Background(), chat.SendMessage("hi"))
	assert.ErrorIs(t, err, chat.ErrDisconnected)
	assert.EqualValues(t, 1, h.dialer.dials.Load())

	h.api.setValidateErr(nil)
	next := newFakeConn()
	h.dialer.conns <- next
	require.NoError(t, h.tokens.Set("fresh"))

	h.waitState(t, chat.PhaseConnecting)
	h.goLive(t, next)

	h.api.mu.Lock()
	assert.Equal(t, []string{"stale", "fresh"}, h.api.validated)
	h.api.mu.Unlock()
}

func TestSession_ProviderUnauthorizedPauses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)

	conn.send(`{"event":"pusher:error","data":{"code":4009,"message":"Unauthorized"}}`)
	st := h.waitState(t, chat.PhaseReconnecting)
	assert.True(t, st.Paused())
	assert.Equal(t, chat.CauseAuth, st.Cause)
}

func TestSession_ProviderReconnectResetsAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, conn := h.open(t)
	h.goLive(t, conn)

	conn.send(`{"event":"pusher:error","data":{"code":4200,"message":"Generic reconnect immediately"}}`)
	st := h.waitState(t, chat.PhaseReconnecting)
	assert.Equal(t, chat.CauseProvider, st.Cause)
	assert.Equal(t, 1, st.Attempt)
}

func TestSession_ReconnectWhileLive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s, conn := h.open(t)
	h.goLive(t, conn)

	next := newFakeConn()
	h.dialer.conns <- next
	s.Reconnect()

	st := h.waitState(t, chat.PhaseReconnecting)
	assert.Equal(t, chat.CauseRequested, st.Cause)
	assert.False(t, st.Paused())
	h.waitState(t, chat.PhaseConnecting)
	h.goLive(t, next)
}

func TestSession_Send(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rate.NewLimiter(rate.Every(time.Minute), 1))
	require.NoError(t, h.tokens.Set("secret"))
	s, conn := h.open(t)
	h.goLive(t, conn)

	_, err := s.Send(context.Background(), chat.SendMessage(""))
	var rejected *chat.RejectedError
	require.ErrorAs(t, err, &rejected)

	ack, err := s.Send(context.Background(), chat.SendMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, "sent-1", ack.MessageID)

	_, err = s.Send(context.Background(), chat.SendMessage("again"))
	var limited *chat.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))

	h.api.mu.Lock()
	assert.Len(t, h.api.performed, 1)
	assert.Equal(t, []string{"secret"}, h.api.performedBy)
	h.api.mu.Unlock()
}

func TestSession_SendWithoutToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s, conn := h.open(t)
	h.goLive(t, conn)

	_, err := s.Send(context.Background(), chat.SendMessage("hello"))
	assert.ErrorIs(t, err, chat.ErrUnauthenticated)
	assert.Zero(t, h.api.calls())
}

func TestSession_SendRejectedTokenPauses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.tokens.Set("secret"))
	s, conn := h.open(t)
	h.goLive(t, conn)

	h.api.mu.Lock()
	h.api.performErr = chat.ErrUnauthenticated
	h.api.mu.Unlock()

	_, err := s.Send(context.Background(), chat.DeleteMessage("m1"))
	assert.ErrorIs(t, err, chat.ErrUnauthenticated)
	assert.True(t, h.tokens.NeedsReauth())

	st := h.waitState(t, chat.PhaseReconnecting)
	assert.True(t, st.Paused())
}

func TestSession_WithTokenOverridesStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	conn := newFakeConn()
	h.dialer.conns <- conn
	s, err := h.engine.Open("xqc", WithToken("own"))
	require.NoError(t, err)
	h.goLive(t, conn)

	_, err = s.Send(context.Background(), chat.SendMessage("hello"))
	require.NoError(t, err)

	h.api.mu.Lock()
	assert.Equal(t, []string{"own"}, h.api.performedBy)
	h.api.mu.Unlock()
	_, ok := h.tokens.Current()
	assert.False(t, ok)
}

func TestSession_CloseIsTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s, err := h.engine.Open("xqc")
	require.NoError(t, err)
	h.waitState(t, chat.PhaseConnecting)

	s.Close()
	s.Close()
	h.engine.Close(s)

	assert.Equal(t, chat.PhaseClosed, s.State().Phase)
	_, err = s.Send(context.Background(), chat.SendMessage("hi"))
	assert.ErrorIs(t, err, chat.ErrDisconnected)
	assert.Empty(t, h.engine.Sessions())

	closed := 0
	for _, ev := range h.cursor.Poll(100) {
		if st, ok := ev.(chat.ConnectionStatusChanged); ok && st.State.Phase == chat.PhaseClosed {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
}

func TestEngine_Open(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	_, err := h.engine.Open("not/a/channel")
	assert.ErrorIs(t, err, chat.ErrInvalidChannel)

	a, err := h.engine.Open("XQC")
	require.NoError(t, err)
	b, err := h.engine.Open("adinross")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	found, ok := h.engine.Find("xqc")
	require.True(t, ok)
	assert.Same(t, a, found)

	got, ok := h.engine.Get(b.ID())
	require.True(t, ok)
	assert.Same(t, b, got)

	h.engine.Shutdown()
	assert.Empty(t, h.engine.Sessions())
	_, err = h.engine.Open("xqc")
	assert.ErrorIs(t, err, ErrEngineClosed)
}
