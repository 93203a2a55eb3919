package ports

import (
	"context"
	"krosty/internal/app/domain/chat"
)

// EmoteProvider fetches the full current emote/badge set of one provider for a channel.
type EmoteProvider interface {
	Provider() chat.Provider
	FetchEmotes(ctx context.Context, channel ChannelInfo) (chat.EmoteSet, error)
}
