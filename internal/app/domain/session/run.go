package session

import (
	"context"
	"errors"
	"github.com/jonboulle/clockwork"
	"krosty/internal/app/adapters/platform/kick/wire"
	"krosty/internal/app/domain/catalog"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/decoder"
	"krosty/internal/app/ports"
	"log/slog"
	"time"
)

// https://pusher.com/docs/channels/library_auth_reference/pusher-websockets-protocol/#error-codes
const codeUnauthorized = 4009

type outcome struct {
	cause chat.Cause
	// reset restarts the backoff schedule before the next wait.
	reset bool
}

func (s *Session) run() {
	defer close(s.done)
	defer s.setState(chat.SessionState{Phase: chat.PhaseClosed})

	for s.ctx.Err() == nil {
		if !s.awaitCredentials() {
			return
		}

		out := s.connect()
		if s.ctx.Err() != nil {
			return
		}
		if out.reset {
			s.seq.Reset()
		}

		switch out.cause {
		case chat.CauseAuth:
			continue
		case chat.CauseRequested:
			s.setState(chat.SessionState{Phase: chat.PhaseReconnecting, Attempt: s.seq.Attempt() + 1, Cause: out.cause})
			continue
		}

		if !s.wait(out.cause) {
			return
		}
	}
}

// awaitCredentials pauses while the token is known to be rejected, until a
// new one is stored or a reconnect is requested.
func (s *Session) awaitCredentials() bool {
	for {
		changed := s.tokens.Watch()
		if !s.tokens.NeedsReauth() {
			return true
		}

		s.setState(chat.SessionState{Phase: chat.PhaseReconnecting, Attempt: s.seq.Attempt() + 1, Cause: chat.CauseAuth})
		select {
		case <-s.ctx.Done():
			return false
		case <-changed:
		case <-s.retry:
			return true
		}
	}
}

func (s *Session) wait(cause chat.Cause) bool {
	attempt, delay := s.seq.Next()
	timer := s.deps.Clock.NewTimer(delay)
	defer timer.Stop()

	s.log.Warn("Reconnecting",
		slog.Int("attempt", attempt),
		slog.String("cause", string(cause)),
		slog.Duration("delay", delay),
	)
	s.setState(chat.SessionState{
		Phase:       chat.PhaseReconnecting,
		Attempt:     attempt,
		NextRetryAt: s.deps.Clock.Now().Add(delay),
		Cause:       cause,
	})

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.Chan():
	case <-s.retry:
	}
	return true
}

// connect runs one connection from dial to loss and reports why it ended.
func (s *Session) connect() outcome {
	s.setState(chat.SessionState{Phase: chat.PhaseConnecting, Attempt: s.seq.Attempt()})

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	info, err := s.deps.Resolver.ResolveChannel(dialCtx, s.channel)
	if err != nil {
		dialCancel()
		s.log.Error("Failed to resolve channel", err)
		if errors.Is(err, chat.ErrInvalidChannel) {
			return outcome{cause: chat.CauseProvider}
		}
		return outcome{cause: chat.CauseTransport}
	}
	s.info.Store(&info)
	if s.deps.Catalog != nil {
		s.deps.Catalog.Get(s.channel)
	}

	conn, err := s.deps.Dialer.Dial(dialCtx)
	dialCancel()
	if err != nil {
		s.log.Error("Failed to dial", err)
		return outcome{cause: chat.CauseTransport}
	}
	defer conn.Close()

	// frames is closed after the read error is stored, so every frame read
	// before the loss reaches onFrame ahead of it.
	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			raw, err := conn.ReadFrame()
			if err != nil {
				readErr <- err
				close(frames)
				return
			}
			select {
			case frames <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	c := &connection{
		s:        s,
		write:    conn.WriteFrame,
		info:     info,
		phase:    chat.PhaseConnecting,
		deadline: s.deps.Clock.NewTimer(s.cfg.ConnectTimeout),
		activity: s.cfg.HeartbeatInterval,
	}
	defer c.stop()

	for {
		changed := s.tokens.Watch()

		select {
		case <-ctx.Done():
			return outcome{cause: chat.CauseRequested}
		case <-c.deadline.Chan():
			s.log.Warn("Timed out waiting for the server", slog.String("phase", c.phase.String()))
			return c.flush(ctx, frames, outcome{cause: chat.CauseTransport})
		case <-c.idleChan():
			if out, done := c.onIdle(); done {
				return c.flush(ctx, frames, out)
			}
		case <-changed:
			if s.tokens.NeedsReauth() {
				s.log.Warn("Token invalidated, dropping connection")
				return c.flush(ctx, frames, outcome{cause: chat.CauseAuth})
			}
		case <-c.retryChan():
			s.log.Info("Reconnect requested")
			return c.flush(ctx, frames, outcome{cause: chat.CauseRequested, reset: true})
		case raw, ok := <-frames:
			if !ok {
				err := <-readErr
				s.log.Warn("Connection lost", slog.String("error", err.Error()), slog.String("phase", c.phase.String()))
				return outcome{cause: chat.CauseTransport}
			}
			if out, done := c.onFrame(ctx, raw); done {
				return out
			}
		}
	}
}

// connection is the per-dial state of connect. Only the owner goroutine touches it.
type connection struct {
	s     *Session
	write func([]byte) error
	info  ports.ChannelInfo
	phase chat.Phase

	deadline clockwork.Timer
	idle     clockwork.Timer
	activity time.Duration
	pinged   bool
}

func (c *connection) stop() {
	c.deadline.Stop()
	if c.idle != nil {
		c.idle.Stop()
	}
}

func (c *connection) idleChan() <-chan time.Time {
	if c.idle == nil {
		return nil
	}
	return c.idle.Chan()
}

// retryChan only listens while live; otherwise the request is left for wait.
func (c *connection) retryChan() <-chan struct{} {
	if c.phase != chat.PhaseLive {
		return nil
	}
	return c.s.retry
}

// flush decodes the frames already read off the socket before the
// connection is dropped for out. A frame that ends the connection itself
// takes precedence.
func (c *connection) flush(ctx context.Context, frames <-chan []byte, out outcome) outcome {
	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				return out
			}
			if next, done := c.onFrame(ctx, raw); done {
				return next
			}
		default:
			return out
		}
	}
}

func (c *connection) onIdle() (outcome, bool) {
	if c.pinged {
		c.s.log.Warn("Heartbeat timed out", slog.Duration("timeout", c.s.cfg.HeartbeatTimeout))
		return outcome{cause: chat.CauseHeartbeat}, true
	}

	c.pinged = true
	c.idle.Reset(c.s.cfg.HeartbeatTimeout)
	if err := c.write(wire.Ping()); err != nil {
		c.s.log.Warn("Failed to send ping", slog.String("error", err.Error()))
		return outcome{cause: chat.CauseTransport}, true
	}
	return outcome{}, false
}

func (c *connection) onFrame(ctx context.Context, raw []byte) (outcome, bool) {
	s := c.s
	now := s.deps.Clock.Now()

	if c.idle != nil {
		c.pinged = false
		c.idle.Reset(c.activity)
	}

	start := time.Now()
	frame, err := s.decoder.Decode(raw, s.catalogView(), now)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, decoder.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		s.deps.Observer.FrameDropped(s.channel, reason)
		s.log.Debug("Dropped frame", slog.String("reason", reason), slog.String("error", err.Error()))
		return outcome{}, false
	}
	s.deps.Observer.FrameDecoded(s.channel, frame.Kind, time.Since(start))

	switch frame.Kind {
	case decoder.KindHandshake:
		if c.phase != chat.PhaseConnecting {
			return outcome{}, false
		}
		if t := frame.Handshake.ActivityTimeout; t > 0 && t < c.activity {
			c.activity = t
		}
		return c.authenticate(ctx)

	case decoder.KindSubscribed:
		if c.phase != chat.PhaseAuthenticating {
			return outcome{}, false
		}
		c.deadline.Stop()
		c.idle = s.deps.Clock.NewTimer(c.activity)
		c.phase = chat.PhaseLive
		s.seq.Reset()
		s.log.Info("Session live", slog.Int64("chatroom_id", c.info.ChatroomID))
		s.setState(chat.SessionState{Phase: chat.PhaseLive})

	case decoder.KindPing:
		if err := c.write(wire.Pong()); err != nil {
			s.log.Warn("Failed to send pong", slog.String("error", err.Error()))
			return outcome{cause: chat.CauseTransport}, true
		}

	case decoder.KindProviderError:
		return c.onProviderError(frame.Error)

	case decoder.KindMessage, decoder.KindControl:
		if c.phase != chat.PhaseLive {
			s.deps.Observer.FrameDropped(s.channel, "not_live")
			return outcome{}, false
		}
		s.deps.Publisher.Publish(frame.Event)

	case decoder.KindInformational:
		s.log.Trace("Ignored event", slog.String("event", frame.Name))
	}

	return outcome{}, false
}

// authenticate validates the credential, if there is one, and subscribes to
// the chatroom. Reading a public chatroom does not need a token.
func (c *connection) authenticate(ctx context.Context) (outcome, bool) {
	s := c.s
	c.phase = chat.PhaseAuthenticating
	s.setState(chat.SessionState{Phase: chat.PhaseAuthenticating})

	if tok, ok := s.tokens.Current(); ok {
		vctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		err := s.deps.API.ValidateToken(vctx, tok.Reveal())
		cancel()

		switch {
		case errors.Is(err, chat.ErrUnauthenticated):
			s.log.Warn("Token rejected, waiting for a new one")
			if ierr := s.tokens.Invalidate(); ierr != nil {
				s.log.Error("Failed to invalidate token", ierr)
			}
			return outcome{cause: chat.CauseAuth}, true
		case err != nil:
			s.log.Error("Failed to validate token", err)
			return outcome{cause: chat.CauseTransport}, true
		}
	}

	if err := c.write(wire.Subscribe(wire.ChatroomChannel(c.info.ChatroomID))); err != nil {
		s.log.Error("Failed to subscribe", err)
		return outcome{cause: chat.CauseTransport}, true
	}
	return outcome{}, false
}

func (c *connection) onProviderError(pe decoder.ProviderError) (outcome, bool) {
	s := c.s
	s.log.Warn("Provider error", slog.Int("code", pe.Code), slog.String("message", pe.Message))

	switch {
	case pe.Code == codeUnauthorized:
		if err := s.tokens.Invalidate(); err != nil {
			s.log.Error("Failed to invalidate token", err)
		}
		return outcome{cause: chat.CauseAuth}, true
	case pe.Code >= 4000 && pe.Code < 4200:
		return outcome{cause: chat.CauseProvider}, true
	case pe.Code >= 4200 && pe.Code < 4300:
		return outcome{cause: chat.CauseProvider, reset: true}, true
	}
	return outcome{}, false
}

func (s *Session) catalogView() *catalog.Catalog {
	if s.deps.Catalog == nil {
		return nil
	}
	return s.deps.Catalog.Get(s.channel)
}

func (s *Session) setState(st chat.SessionState) {
	prev := s.state.Swap(&st)
	if prev != nil && *prev == st {
		return
	}
	s.deps.Observer.StateChanged(s.channel, st)
	s.deps.Publisher.Publish(chat.ConnectionStatusChanged{
		Channel: s.channel,
		State:   st,
		At:      s.deps.Clock.Now(),
	})
}
