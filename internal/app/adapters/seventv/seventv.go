package seventv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/ports"
	"krosty/pkg/logger"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

var errNotFound = errors.New("7tv: not found")

type SevenTV struct {
	log     logger.Logger
	client  *http.Client
	apiBase string
}

func New(log logger.Logger, client *http.Client, apiBase string) *SevenTV {
	if apiBase == "" {
		apiBase = "https://7tv.io"
	}
	return &SevenTV{
		log:     log,
		client:  client,
		apiBase: strings.TrimRight(apiBase, "/"),
	}
}

func (sv *SevenTV) Provider() chat.Provider {
	return chat.ProviderSevenTV
}

// FetchEmotes merges the global set with the channel's active set; channel
// emotes win on name collisions. A broadcaster without a 7TV account just
// gets the global set.
func (sv *SevenTV) FetchEmotes(ctx context.Context, channel ports.ChannelInfo) (chat.EmoteSet, error) {
	global, err := sv.GetGlobalSet(ctx)
	if err != nil {
		return chat.EmoteSet{}, err
	}

	set := chat.EmoteSet{Provider: chat.ProviderSevenTV}
	set.Emotes = append(set.Emotes, convertSet(global)...)

	user, err := sv.GetUserChannel(ctx, channel.BroadcasterUserID)
	switch {
	case errors.Is(err, errNotFound):
		sv.log.Debug("No 7TV account for channel", slog.String("channel", string(channel.Slug)))
	case err != nil:
		return chat.EmoteSet{}, err
	case user.EmoteSet != nil:
		set.Emotes = append(set.Emotes, convertSet(user.EmoteSet)...)
	}

	return set, nil
}

func (sv *SevenTV) GetUserChannel(ctx context.Context, kickUserID int64) (*ports.SevenTVUser, error) {
	var user ports.SevenTVUser
	if err := sv.get(ctx, "/v3/users/kick/"+strconv.FormatInt(kickUserID, 10), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (sv *SevenTV) GetGlobalSet(ctx context.Context) (*ports.SevenTVEmoteSet, error) {
	var set ports.SevenTVEmoteSet
	if err := sv.get(ctx, "/v3/emote-sets/global", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (sv *SevenTV) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sv.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := sv.client.Do(req)
	if err != nil {
		return fmt.Errorf("7tv %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("7tv %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("7tv %s: decode: %w", path, err)
	}
	return nil
}

func convertSet(set *ports.SevenTVEmoteSet) []chat.CatalogEntry {
	if set == nil {
		return nil
	}

	out := make([]chat.CatalogEntry, 0, len(set.Emotes))
	for _, e := range set.Emotes {
		id := e.ID
		if id == "" {
			id = e.Data.ID
		}
		name := e.Name
		if name == "" {
			name = e.Data.Name
		}
		if id == "" || name == "" {
			continue
		}

		out = append(out, chat.CatalogEntry{
			Provider:    chat.ProviderSevenTV,
			EmoteID:     id,
			DisplayName: name,
			Images:      images(e.Data.Host),
			Animated:    e.Data.Animated,
		})
	}
	return out
}

func images(host ports.SevenTVHost) []chat.ImageVariant {
	base := host.URL
	if strings.HasPrefix(base, "//") {
		base = "https:" + base
	}

	var webp, other []chat.ImageVariant
	for _, f := range host.Files {
		v := chat.ImageVariant{
			Resolution: strings.TrimSuffix(f.Name, "."+strings.ToLower(f.Format)),
			URL:        base + "/" + f.Name,
			Width:      f.Width,
			Height:     f.Height,
		}
		if strings.EqualFold(f.Format, "WEBP") {
			webp = append(webp, v)
		} else {
			other = append(other, v)
		}
	}

	if len(webp) > 0 {
		return webp
	}
	return other
}
