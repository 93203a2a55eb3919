package api

import (
	"context"
	"encoding/json"
	"fmt"
	"krosty/internal/app/adapters/platform/kick/wire"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/ports"
	"net/http"
	"net/url"
)

const emoteImageURL = "https://files.kick.com/emotes/%s/fullsize"

// emoteGroup ids are numeric for channels and strings for "Global" and "Emoji".
type emoteGroup struct {
	ID     json.RawMessage `json:"id"`
	Slug   string          `json:"slug"`
	Emotes []kickEmote     `json:"emotes"`
}

type kickEmote struct {
	ID              wire.ID `json:"id"`
	Name            string  `json:"name"`
	SubscribersOnly bool    `json:"subscribers_only"`
}

func (k *Kick) Provider() chat.Provider {
	return chat.ProviderKick
}

// FetchEmotes returns the channel's emotes plus Kick's global and emoji
// sets.
func (k *Kick) FetchEmotes(ctx context.Context, channel ports.ChannelInfo) (chat.EmoteSet, error) {
	var groups []emoteGroup
	_, err := k.doKickRequest(ctx, kickRequest{
		Method: http.MethodGet,
		URL:    k.siteBase + "/emotes/" + url.PathEscape(string(channel.Slug)),
	}, &groups)
	if err != nil {
		return chat.EmoteSet{}, fmt.Errorf("kick emotes for %s: %w", channel.Slug, err)
	}

	set := chat.EmoteSet{Provider: chat.ProviderKick}
	for _, g := range groups {
		for _, e := range g.Emotes {
			if e.ID == "" {
				continue
			}
			set.Emotes = append(set.Emotes, chat.CatalogEntry{
				Provider:    chat.ProviderKick,
				EmoteID:     string(e.ID),
				DisplayName: e.Name,
				Images: []chat.ImageVariant{{
					Resolution: "fullsize",
					URL:        fmt.Sprintf(emoteImageURL, url.PathEscape(string(e.ID))),
				}},
			})
		}
	}

	return set, nil
}
