package api

import (
	"context"
	"errors"
	"fmt"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/ports"
	"log/slog"
	"net/http"
	"net/url"
)

type channelResponse struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	Slug             string            `json:"slug"`
	Chatroom         chatroomRef       `json:"chatroom"`
	User             userRef           `json:"user"`
	SubscriberBadges []subscriberBadge `json:"subscriber_badges"`
}

type chatroomRef struct {
	ID int64 `json:"id"`
}

type userRef struct {
	Username string `json:"username"`
}

type subscriberBadge struct {
	Months     int        `json:"months"`
	BadgeImage badgeImage `json:"badge_image"`
}

type badgeImage struct {
	Src string `json:"src"`
}

// ResolveChannel maps a slug to its numeric ids. Results are cached; ids
// never change for a slug.
func (k *Kick) ResolveChannel(ctx context.Context, slug chat.ChannelID) (ports.ChannelInfo, error) {
	if info, ok := k.channels.Get(string(slug)); ok {
		return info, nil
	}

	var resp channelResponse
	_, err := k.doKickRequest(ctx, kickRequest{
		Method: http.MethodGet,
		URL:    k.siteBase + "/api/v2/channels/" + url.PathEscape(string(slug)),
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ports.ChannelInfo{}, fmt.Errorf("channel %s: %w", slug, chat.ErrInvalidChannel)
		}
		return ports.ChannelInfo{}, err
	}
	if resp.Chatroom.ID == 0 {
		return ports.ChannelInfo{}, fmt.Errorf("channel %s has no chatroom", slug)
	}

	info := ports.ChannelInfo{
		Slug:              slug,
		ChannelID:         resp.ID,
		BroadcasterUserID: resp.UserID,
		ChatroomID:        resp.Chatroom.ID,
		DisplayName:       resp.User.Username,
	}
	for _, b := range resp.SubscriberBadges {
		if b.BadgeImage.Src == "" {
			continue
		}
		info.SubscriberBadges = append(info.SubscriberBadges, chat.BadgeImage{Months: b.Months, URL: b.BadgeImage.Src})
	}

	k.channels.Set(string(slug), info)
	k.log.Debug("Channel resolved", slog.String("slug", string(slug)), slog.Int64("chatroom", info.ChatroomID))

	return info, nil
}
