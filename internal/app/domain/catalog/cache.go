package catalog

import (
	"context"
	"fmt"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/infrastructure/storage"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"sync"
	"time"
)

// FetchError reports which provider broke a refresh.
type FetchError struct {
	Provider chat.Provider
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s emotes: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Config struct {
	StaleAfter      time.Duration
	IdleTTL         time.Duration
	FailureCooldown time.Duration
	FetchTimeout    time.Duration
}

// Cache keeps the newest catalog per channel and refreshes it lazily.
type Cache struct {
	log       logger.Logger
	resolver  ports.ChannelResolver
	providers []ports.EmoteProvider
	breakers  map[chat.Provider]*gobreaker.CircuitBreaker
	cfg       Config
	clock     clockwork.Clock

	store *storage.Cache[*Catalog]
	group singleflight.Group

	mu       sync.Mutex
	failedAt map[chat.ChannelID]time.Time

	onRefresh func(result string, took time.Duration)
}

type Option func(*Cache)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithRefreshHook observes every completed refresh with "ok" or "error".
func WithRefreshHook(fn func(result string, took time.Duration)) Option {
	return func(c *Cache) { c.onRefresh = fn }
}

func NewCache(log logger.Logger, resolver ports.ChannelResolver, providers []ports.EmoteProvider, cfg Config, opts ...Option) *Cache {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}

	c := &Cache{
		log:       log,
		resolver:  resolver,
		providers: providers,
		breakers:  make(map[chat.Provider]*gobreaker.CircuitBreaker, len(providers)),
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		failedAt:  make(map[chat.ChannelID]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range providers {
		name := p.Provider()
		c.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(name),
			MaxRequests: 1,
			Interval:    5 * time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn("Emote provider breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			},
		})
	}

	c.store = storage.NewCache[*Catalog](64, cfg.IdleTTL, func(channel string, _ *Catalog) {
		c.log.Debug("Catalog evicted", "channel", channel)
	})

	return c
}

// Get returns the current snapshot, or an empty one when nothing was
// fetched yet. A stale snapshot triggers one background refresh; the
// caller never waits for it.
func (c *Cache) Get(channel chat.ChannelID) *Catalog {
	cat, ok := c.store.Get(string(channel))
	if !ok {
		cat = Empty(channel)
	}

	if cat.Stale(c.clock.Now()) && !c.coolingDown(channel) {
		c.group.DoChan(string(channel), func() (any, error) {
			return c.fetch(channel)
		})
	}

	return cat
}

// Refresh fetches every provider and swaps the snapshot in on success.
// Concurrent calls for the same channel share one fetch. On failure the
// previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context, channel chat.ChannelID) error {
	ch := c.group.DoChan(string(channel), func() (any, error) {
		return c.fetch(channel)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops a channel's snapshot, e.g. when its last session closes.
func (c *Cache) Forget(channel chat.ChannelID) {
	c.store.ClearKey(string(channel))

	c.mu.Lock()
	delete(c.failedAt, channel)
	c.mu.Unlock()
}

func (c *Cache) coolingDown(channel chat.ChannelID) bool {
	if c.cfg.FailureCooldown <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.failedAt[channel]
	return ok && c.clock.Since(at) < c.cfg.FailureCooldown
}

func (c *Cache) fetch(channel chat.ChannelID) (*Catalog, error) {
	start := c.clock.Now()

	cat, err := c.fetchAll(channel)

	c.mu.Lock()
	if err != nil {
		c.failedAt[channel] = c.clock.Now()
	} else {
		delete(c.failedAt, channel)
	}
	c.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
		c.log.Warn("Catalog refresh failed, keeping previous snapshot", "channel", channel, "error", err)
	} else {
		c.store.Set(string(channel), cat)
		c.log.Debug("Catalog refreshed", "channel", channel, "emotes", cat.Len())
	}
	if c.onRefresh != nil {
		c.onRefresh(result, c.clock.Since(start))
	}

	return cat, err
}

func (c *Cache) fetchAll(channel chat.ChannelID) (*Catalog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	info, err := c.resolver.ResolveChannel(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", channel, err)
	}

	sets := make([]chat.EmoteSet, len(c.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.providers {
		g.Go(func() error {
			res, err := c.breakers[p.Provider()].Execute(func() (interface{}, error) {
				return p.FetchEmotes(gctx, info)
			})
			if err != nil {
				return &FetchError{Provider: p.Provider(), Err: err}
			}
			sets[i] = res.(chat.EmoteSet)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Build(channel, c.clock.Now(), c.cfg.StaleAfter, info.SubscriberBadges, sets...), nil
}
