package chat

type Provider string

const (
	ProviderKick    Provider = "kick-native"
	ProviderSevenTV Provider = "7tv"
)

type ImageVariant struct {
	Resolution string
	URL        string
	Width      int
	Height     int
}

// CatalogEntry is never mutated after a catalog is built.
type CatalogEntry struct {
	Provider    Provider
	EmoteID     string
	DisplayName string
	Images      []ImageVariant
	Animated    bool
}

// BadgeImage is the art for a subscriber badge unlocked at Months.
type BadgeImage struct {
	Months int
	URL    string
}

// EmoteSet is what one provider returns for a channel. Subscriber badges
// come from the channel lookup, not from emote providers.
type EmoteSet struct {
	Provider Provider
	Emotes   []CatalogEntry
}
