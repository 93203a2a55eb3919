package ports

// 7TV v3 REST shapes, trimmed to what the catalog consumes.

type SevenTVUser struct {
	ID         string           `json:"id"`
	Platform   string           `json:"platform"`
	Username   string           `json:"username"`
	EmoteSetID string           `json:"emote_set_id"`
	EmoteSet   *SevenTVEmoteSet `json:"emote_set"`
}

type SevenTVEmoteSet struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Emotes []SevenTVEmote `json:"emotes"`
}

type SevenTVEmote struct {
	ID   string           `json:"id"`
	Name string           `json:"name"` // alias in this set, may differ from Data.Name
	Data SevenTVEmoteData `json:"data"`
}

type SevenTVEmoteData struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Animated bool        `json:"animated"`
	Listed   bool        `json:"listed"`
	Host     SevenTVHost `json:"host"`
}

type SevenTVHost struct {
	URL   string            `json:"url"`
	Files []SevenTVHostFile `json:"files"`
}

type SevenTVHostFile struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}
