package ports

import (
	"context"
	"krosty/internal/app/domain/chat"
)

// ChannelInfo is what the provider tells us about a slug.
type ChannelInfo struct {
	Slug              chat.ChannelID
	ChannelID         int64
	BroadcasterUserID int64
	ChatroomID        int64
	DisplayName       string
	SubscriberBadges  []chat.BadgeImage
}

type ChannelResolver interface {
	ResolveChannel(ctx context.Context, slug chat.ChannelID) (ChannelInfo, error)
}

// ChatAPI performs authenticated outbound calls. token is the raw bearer
// credential and must only ever be placed in the Authorization header.
type ChatAPI interface {
	ValidateToken(ctx context.Context, token string) error
	Perform(ctx context.Context, token string, channel ChannelInfo, action chat.Action) (chat.Ack, error)
}
