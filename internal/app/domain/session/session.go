package session

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/decoder"
	"krosty/internal/app/infrastructure/backoff"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Session is one logical connection to a channel's chat. A single owner
// goroutine reads, decodes and publishes; every other method is safe to
// call concurrently.
type Session struct {
	id      uuid.UUID
	channel chat.ChannelID
	order   uint64
	log     logger.Logger
	cfg     Config
	deps    Deps
	tokens  TokenSource
	decoder *decoder.Decoder

	// owned by run
	seq *backoff.Sequence

	state atomic.Pointer[chat.SessionState]
	info  atomic.Pointer[ports.ChannelInfo]

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	retry     chan struct{}
	closeOnce sync.Once
	engine    *Engine
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Channel() chat.ChannelID { return s.channel }

func (s *Session) State() chat.SessionState { return *s.state.Load() }

// Done is closed once the session reached Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the session and waits for its goroutine. Safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.engine != nil {
			s.engine.remove(s)
		}
		s.log.Info("Session closed", slog.String("id", s.id.String()))
	})
}

// Reconnect skips a pending backoff wait or auth pause. On a live session it
// drops the connection and dials again right away.
func (s *Session) Reconnect() {
	select {
	case s.retry <- struct{}{}:
	default:
	}
}

// Send performs an outbound action with the current credential. It never
// queues: a session that is not live or a limiter without budget fails fast.
func (s *Session) Send(ctx context.Context, action chat.Action) (chat.Ack, error) {
	ack, err := s.send(ctx, action)
	s.deps.Observer.ActionDone(action.Kind, actionResult(err))
	return ack, err
}

func (s *Session) send(ctx context.Context, action chat.Action) (chat.Ack, error) {
	if err := action.Validate(); err != nil {
		return chat.Ack{}, err
	}
	if s.ctx.Err() != nil || s.State().Phase != chat.PhaseLive {
		return chat.Ack{}, chat.ErrDisconnected
	}
	info := s.info.Load()
	if info == nil {
		return chat.Ack{}, chat.ErrDisconnected
	}
	tok, ok := s.tokens.Current()
	if !ok {
		return chat.Ack{}, chat.ErrUnauthenticated
	}

	if s.deps.Limiter != nil {
		now := s.deps.Clock.Now()
		r := s.deps.Limiter.ReserveN(now, 1)
		if !r.OK() {
			return chat.Ack{}, &chat.RateLimitedError{}
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			return chat.Ack{}, &chat.RateLimitedError{RetryAfter: delay}
		}
	}

	callCtx := ctx
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}
	callCtx, cancel := context.WithCancel(callCtx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	ack, err := s.deps.API.Perform(callCtx, tok.Reveal(), *info, action)
	switch {
	case err == nil:
		return ack, nil
	case s.ctx.Err() != nil:
		return chat.Ack{}, chat.ErrDisconnected
	case errors.Is(err, chat.ErrUnauthenticated):
		s.log.Warn("Token rejected on send, pausing for re-auth")
		if ierr := s.tokens.Invalidate(); ierr != nil {
			s.log.Error("Failed to invalidate token", ierr)
		}
	}
	return chat.Ack{}, err
}

func actionResult(err error) string {
	var (
		limited  *chat.RateLimitedError
		rejected *chat.RejectedError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, chat.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, chat.ErrDisconnected):
		return "disconnected"
	}
	return "error"
}
