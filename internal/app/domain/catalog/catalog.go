package catalog

import (
	"krosty/internal/app/domain/chat"
	"sort"
	"time"
)

type key struct {
	provider chat.Provider
	value    string
}

// Catalog is an immutable snapshot of every emote and badge known for one
// channel. Decoders hold a pointer for the duration of a frame; refreshes
// publish a new pointer instead of mutating.
type Catalog struct {
	channel    chat.ChannelID
	byID       map[key]chat.CatalogEntry
	byName     map[key]chat.CatalogEntry
	badges     []chat.BadgeImage
	fetchedAt  time.Time
	staleAfter time.Duration
}

// Empty is the catalog of a channel nothing was fetched for yet. It is
// always stale.
func Empty(channel chat.ChannelID) *Catalog {
	return &Catalog{
		channel: channel,
		byID:    map[key]chat.CatalogEntry{},
		byName:  map[key]chat.CatalogEntry{},
	}
}

// Build assembles a snapshot. Later sets win on name collisions within the
// same provider.
func Build(channel chat.ChannelID, fetchedAt time.Time, staleAfter time.Duration, badges []chat.BadgeImage, sets ...chat.EmoteSet) *Catalog {
	c := &Catalog{
		channel:    channel,
		byID:       make(map[key]chat.CatalogEntry),
		byName:     make(map[key]chat.CatalogEntry),
		fetchedAt:  fetchedAt,
		staleAfter: staleAfter,
	}

	for _, set := range sets {
		for _, e := range set.Emotes {
			if e.Provider == "" {
				e.Provider = set.Provider
			}
			if e.EmoteID == "" {
				continue
			}
			c.byID[key{e.Provider, e.EmoteID}] = e
			if e.DisplayName != "" {
				c.byName[key{e.Provider, e.DisplayName}] = e
			}
		}
	}
	c.badges = append(c.badges, badges...)

	sort.SliceStable(c.badges, func(i, j int) bool {
		return c.badges[i].Months < c.badges[j].Months
	})

	return c
}

func (c *Catalog) Channel() chat.ChannelID { return c.channel }

func (c *Catalog) FetchedAt() time.Time { return c.fetchedAt }

// Stale reports whether the snapshot is older than staleAfter at now.
func (c *Catalog) Stale(now time.Time) bool {
	if c.fetchedAt.IsZero() {
		return true
	}
	return now.Sub(c.fetchedAt) >= c.staleAfter
}

func (c *Catalog) Lookup(p chat.Provider, emoteID string) (chat.CatalogEntry, bool) {
	e, ok := c.byID[key{p, emoteID}]
	return e, ok
}

// LookupName matches the display name exactly; emote names are case
// sensitive.
func (c *Catalog) LookupName(p chat.Provider, name string) (chat.CatalogEntry, bool) {
	e, ok := c.byName[key{p, name}]
	return e, ok
}

// SubscriberBadge returns the badge for the longest tier not above months.
func (c *Catalog) SubscriberBadge(months int) (chat.BadgeImage, bool) {
	var (
		best  chat.BadgeImage
		found bool
	)
	for _, b := range c.badges {
		if b.Months > months {
			break
		}
		best, found = b, true
	}
	return best, found
}

func (c *Catalog) Len() int { return len(c.byID) }

// Entries lists every entry of one provider, in no particular order.
func (c *Catalog) Entries(p chat.Provider) []chat.CatalogEntry {
	out := make([]chat.CatalogEntry, 0)
	for k, e := range c.byID {
		if k.provider == p {
			out = append(out, e)
		}
	}
	return out
}
