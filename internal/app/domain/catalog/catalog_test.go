package catalog

import (
	"context"
	"errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResolver struct{}

func (fakeResolver) ResolveChannel(_ context.Context, slug chat.ChannelID) (ports.ChannelInfo, error) {
	return ports.ChannelInfo{
		Slug:       slug,
		ChannelID:  1,
		ChatroomID: 2,
		SubscriberBadges: []chat.BadgeImage{
			{Months: 6, URL: "six"},
			{Months: 1, URL: "one"},
		},
	}, nil
}

type fakeProvider struct {
	provider chat.Provider
	calls    atomic.Int32

	mu     sync.Mutex
	emotes []chat.CatalogEntry
	err    error
	gate   chan struct{}
}

func (f *fakeProvider) Provider() chat.Provider { return f.provider }

func (f *fakeProvider) FetchEmotes(ctx context.Context, _ ports.ChannelInfo) (chat.EmoteSet, error) {
	f.calls.Add(1)

	f.mu.Lock()
	gate, emotes, err := f.gate, f.emotes, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return chat.EmoteSet{}, ctx.Err()
		}
	}
	if err != nil {
		return chat.EmoteSet{}, err
	}
	return chat.EmoteSet{Provider: f.provider, Emotes: emotes}, nil
}

func (f *fakeProvider) set(emotes []chat.CatalogEntry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.emotes, f.err = emotes, err
}

func emote(p chat.Provider, id, name string) chat.CatalogEntry {
	return chat.CatalogEntry{Provider: p, EmoteID: id, DisplayName: name}
}

func newTestCache(clock clockwork.Clock, providers ...ports.EmoteProvider) *Cache {
	return NewCache(logger.NewNop(), fakeResolver{}, providers, Config{
		StaleAfter:      time.Minute,
		FailureCooldown: 30 * time.Second,
		FetchTimeout:    5 * time.Second,
	}, WithClock(clock))
}

func TestBuild_Lookups(t *testing.T) {
	t.Parallel()

	cat := Build("xqc", time.Now(), time.Minute,
		[]chat.BadgeImage{{Months: 12, URL: "twelve"}, {Months: 1, URL: "one"}},
		chat.EmoteSet{Provider: chat.ProviderSevenTV, Emotes: []chat.CatalogEntry{
			{EmoteID: "g1", DisplayName: "KEKW"},
		}},
		chat.EmoteSet{Provider: chat.ProviderSevenTV, Emotes: []chat.CatalogEntry{
			{EmoteID: "c1", DisplayName: "KEKW"},
		}},
		chat.EmoteSet{Provider: chat.ProviderKick, Emotes: []chat.CatalogEntry{
			{EmoteID: "37226", DisplayName: "KEKW"},
		}},
	)

	e, ok := cat.LookupName(chat.ProviderSevenTV, "KEKW")
	require.True(t, ok)
	assert.Equal(t, "c1", e.EmoteID)

	_, ok = cat.LookupName(chat.ProviderSevenTV, "kekw")
	assert.False(t, ok)

	e, ok = cat.Lookup(chat.ProviderKick, "37226")
	require.True(t, ok)
	assert.Equal(t, chat.ProviderKick, e.Provider)

	_, ok = cat.Lookup(chat.ProviderKick, "g1")
	assert.False(t, ok)

	b, ok := cat.SubscriberBadge(7)
	require.True(t, ok)
	assert.Equal(t, "one", b.URL)
	b, ok = cat.SubscriberBadge(24)
	require.True(t, ok)
	assert.Equal(t, "twelve", b.URL)
	_, ok = cat.SubscriberBadge(0)
	assert.False(t, ok)

	assert.Equal(t, 3, cat.Len())
	assert.Len(t, cat.Entries(chat.ProviderSevenTV), 2)
}

func TestCache_GetUnknownIsEmptyAndTriggersRefresh(t *testing.T) {
	t.Parallel()

	stv := &fakeProvider{provider: chat.ProviderSevenTV}
	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E1", "EMOTE123")}, nil)
	c := newTestCache(clockwork.NewFakeClock(), stv)

	first := c.Get("xqc")
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Len())

	assert.Eventually(t, func() bool {
		_, ok := c.Get("xqc").LookupName(chat.ProviderSevenTV, "EMOTE123")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// the old pointer never changes
	assert.Equal(t, 0, first.Len())
	assert.Equal(t, int32(1), stv.calls.Load())
}

func TestCache_BadgesComeFromChannelOnce(t *testing.T) {
	t.Parallel()

	kick := &fakeProvider{provider: chat.ProviderKick}
	stv := &fakeProvider{provider: chat.ProviderSevenTV}
	c := newTestCache(clockwork.NewFakeClock(), kick, stv)

	require.NoError(t, c.Refresh(context.Background(), "xqc"))
	cat := c.Get("xqc")

	assert.Equal(t, []chat.BadgeImage{{Months: 1, URL: "one"}, {Months: 6, URL: "six"}}, cat.badges)
	b, ok := cat.SubscriberBadge(3)
	require.True(t, ok)
	assert.Equal(t, "one", b.URL)
}

func TestCache_RefreshIsSingleFlight(t *testing.T) {
	t.Parallel()

	stv := &fakeProvider{provider: chat.ProviderSevenTV, gate: make(chan struct{})}
	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E1", "A")}, nil)
	c := newTestCache(clockwork.NewFakeClock(), stv)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Refresh(context.Background(), "xqc")
		}()
	}

	assert.Eventually(t, func() bool { return stv.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(stv.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), stv.calls.Load())
}

func TestCache_FailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	kick := &fakeProvider{provider: chat.ProviderKick}
	stv := &fakeProvider{provider: chat.ProviderSevenTV}
	kick.set([]chat.CatalogEntry{emote(chat.ProviderKick, "1", "kickEmote")}, nil)
	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E1", "OLD")}, nil)

	clock := clockwork.NewFakeClock()
	c := newTestCache(clock, kick, stv)

	require.NoError(t, c.Refresh(context.Background(), "xqc"))
	before := c.Get("xqc")

	boom := errors.New("7tv down")
	stv.set(nil, boom)
	kick.set([]chat.CatalogEntry{emote(chat.ProviderKick, "2", "other")}, nil)

	err := c.Refresh(context.Background(), "xqc")
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, chat.ProviderSevenTV, fe.Provider)
	assert.ErrorIs(t, err, boom)

	after := c.Get("xqc")
	assert.Same(t, before, after)
	_, ok := after.Lookup(chat.ProviderKick, "1")
	assert.True(t, ok)
	_, ok = after.Lookup(chat.ProviderKick, "2")
	assert.False(t, ok)
}

func TestCache_StaleTriggersRefreshAndCooldownHolds(t *testing.T) {
	t.Parallel()

	stv := &fakeProvider{provider: chat.ProviderSevenTV}
	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E1", "A")}, nil)

	clock := clockwork.NewFakeClock()
	c := newTestCache(clock, stv)

	require.NoError(t, c.Refresh(context.Background(), "xqc"))
	c.Get("xqc")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stv.calls.Load(), "fresh catalog must not refetch")

	clock.Advance(2 * time.Minute)
	stv.set(nil, errors.New("boom"))
	c.Get("xqc")
	assert.Eventually(t, func() bool { return stv.calls.Load() == 2 }, 2*time.Second, time.Millisecond)

	// wait for the failed fetch to record its cool-down
	assert.Eventually(t, func() bool { return c.coolingDown("xqc") }, 2*time.Second, time.Millisecond)
	c.Get("xqc")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), stv.calls.Load(), "cool-down suppresses lazy refresh")

	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E2", "B")}, nil)
	clock.Advance(time.Minute)
	c.Get("xqc")
	assert.Eventually(t, func() bool {
		_, ok := c.Get("xqc").LookupName(chat.ProviderSevenTV, "B")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCache_Forget(t *testing.T) {
	t.Parallel()

	stv := &fakeProvider{provider: chat.ProviderSevenTV}
	stv.set([]chat.CatalogEntry{emote(chat.ProviderSevenTV, "E1", "A")}, nil)
	c := newTestCache(clockwork.NewFakeClock(), stv)

	require.NoError(t, c.Refresh(context.Background(), "xqc"))
	c.Forget("xqc")

	// a fresh Get starts over from the empty catalog
	assert.Equal(t, 0, c.Get("xqc").Len())
}
