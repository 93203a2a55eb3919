package token

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// ErrNotStored is returned by a Persister that has nothing saved.
var ErrNotStored = errors.New("no stored token")

// Token is an opaque bearer credential. Formatting it never prints the value.
type Token struct {
	value string
}

func (t Token) Reveal() string { return t.value }

func (t Token) IsZero() bool { return t.value == "" }

func (t Token) String() string { return "[REDACTED]" }

func (t Token) GoString() string { return "token.Token{[REDACTED]}" }

func (t Token) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// Persister keeps the token across restarts. Implementations must not store
// it in cleartext.
type Persister interface {
	Save(secret string) error
	Load() (string, error)
	Clear() error
}

// Store holds the current credential. Writers replace it atomically and
// every change closes the channel handed out by Watch.
type Store struct {
	mu          sync.RWMutex
	current     Token
	needsReauth bool
	changed     chan struct{}
	persist     Persister
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

func NewStore(opts ...Option) *Store {
	s := &Store{changed: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a persisted token, if any. A missing one is not an error.
func (s *Store) Restore() (bool, error) {
	if s.persist == nil {
		return false, nil
	}

	secret, err := s.persist.Load()
	if errors.Is(err, ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, nil
	}

	s.mu.Lock()
	s.current = Token{value: secret}
	s.needsReauth = false
	s.notifyLocked()
	s.mu.Unlock()

	return true, nil
}

func (s *Store) Current() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current, !s.current.IsZero()
}

// Set replaces the credential. An empty value clears it without marking
// the store as needing re-auth.
func (s *Store) Set(raw string) error {
	raw = strings.TrimSpace(raw)

	s.mu.Lock()
	s.current = Token{value: raw}
	s.needsReauth = false
	s.notifyLocked()
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	if raw == "" {
		return s.persist.Clear()
	}
	return s.persist.Save(raw)
}

// Invalidate drops a token the provider rejected. Sessions that need auth
// stay paused until Set is called.
func (s *Store) Invalidate() error {
	s.mu.Lock()
	if s.current.IsZero() && s.needsReauth {
		s.mu.Unlock()
		return nil
	}
	s.current = Token{}
	s.needsReauth = true
	s.notifyLocked()
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	return s.persist.Clear()
}

func (s *Store) NeedsReauth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.needsReauth
}

// Watch returns a channel that is closed on the next change.
func (s *Store) Watch() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.changed
}

func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
