package session

import (
	"cmp"
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
	"krosty/internal/app/domain/catalog"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/decoder"
	"krosty/internal/app/domain/token"
	"krosty/internal/app/infrastructure/backoff"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"slices"
	"sync"
	"time"
)

var ErrEngineClosed = errors.New("session engine is closed")

// TokenSource is the part of token.Store a session depends on.
type TokenSource interface {
	Current() (token.Token, bool)
	Invalidate() error
	NeedsReauth() bool
	Watch() <-chan struct{}
}

type CatalogSource interface {
	Get(channel chat.ChannelID) *catalog.Catalog
}

// forgetter is implemented by catalog sources that can drop a channel's snapshot.
type forgetter interface {
	Forget(channel chat.ChannelID)
}

// Observer receives counters for metrics. All methods must be cheap and non-blocking.
type Observer interface {
	StateChanged(channel chat.ChannelID, st chat.SessionState)
	FrameDecoded(channel chat.ChannelID, kind decoder.Kind, took time.Duration)
	FrameDropped(channel chat.ChannelID, reason string)
	ActionDone(kind chat.ActionKind, result string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(chat.ChannelID, chat.SessionState) {}

func (nopObserver) FrameDecoded(chat.ChannelID, decoder.Kind, time.Duration) {}

func (nopObserver) FrameDropped(chat.ChannelID, string) {}

func (nopObserver) ActionDone(chat.ActionKind, string) {}

type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ConnectTimeout    time.Duration
	SendTimeout       time.Duration
	Backoff           backoff.Policy
}

type Deps struct {
	Log       logger.Logger
	Dialer    ports.Dialer
	Resolver  ports.ChannelResolver
	API       ports.ChatAPI
	Tokens    TokenSource
	Catalog   CatalogSource
	Publisher ports.EventPublisher
	Limiter   *rate.Limiter
	Clock     clockwork.Clock
	Observer  Observer
	Rand      func() float64
}

type Engine struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	opened   uint64
	closed   bool
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}

	return &Engine{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[uuid.UUID]*Session),
	}
}

type OpenOption func(*Session) error

// WithToken gives the session its own credential instead of the shared store.
func WithToken(raw string) OpenOption {
	return func(s *Session) error {
		ts := token.NewStore()
		if err := ts.Set(raw); err != nil {
			return err
		}
		s.tokens = ts
		return nil
	}
}

// Open starts a session for a channel slug and returns immediately; the
// connection is made in the background.
func (e *Engine) Open(channel string, opts ...OpenOption) (*Session, error) {
	id, err := chat.ParseChannelID(channel)
	if err != nil {
		return nil, err
	}

	sid := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      sid,
		channel: id,
		log:     logger.With(e.deps.Log, slog.String("channel", string(id)), slog.String("session", sid.String())),
		cfg:     e.cfg,
		deps:    e.deps,
		tokens:  e.deps.Tokens,
		decoder: decoder.New(id),
		seq:     e.cfg.Backoff.Sequence(e.deps.Rand),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		retry:   make(chan struct{}, 1),
		engine:  e,
	}
	s.state.Store(&chat.SessionState{Phase: chat.PhaseDisconnected})

	for _, opt := range opts {
		if err := opt(s); err != nil {
			cancel()
			return nil, err
		}
	}
	if s.tokens == nil {
		s.tokens = token.NewStore()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return nil, ErrEngineClosed
	}
	e.opened++
	s.order = e.opened
	e.sessions[s.id] = s
	e.mu.Unlock()

	s.log.Info("Session opened", slog.String("id", s.id.String()))
	go s.run()

	return s, nil
}

// Close is Session.Close, kept for callers that only hold the engine.
func (e *Engine) Close(s *Session) {
	s.Close()
}

// Find returns the oldest open session for a channel.
func (e *Engine) Find(channel chat.ChannelID) (*Session, bool) {
	for _, s := range e.Sessions() {
		if s.channel == channel {
			return s, true
		}
	}
	return nil, false
}

func (e *Engine) Get(id uuid.UUID) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// Sessions lists open sessions ordered by open time.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	e.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return cmp.Compare(a.order, b.order)
	})
	return out
}

// Shutdown closes every session and rejects further Opens.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range e.Sessions() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}

func (e *Engine) remove(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, s.id)
	for _, other := range e.sessions {
		if other.channel == s.channel {
			return
		}
	}

	if f, ok := e.deps.Catalog.(forgetter); ok {
		f.Forget(s.channel)
	}
}
