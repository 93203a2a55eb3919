package api

import (
	"context"
	"fmt"
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/ports"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

type introspectData struct {
	Active   bool   `json:"active"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

type introspectResponse struct {
	Data introspectData `json:"data"`
}

type sendMessageRequest struct {
	BroadcasterUserID int64  `json:"broadcaster_user_id"`
	Content           string `json:"content"`
	ReplyToMessageID  string `json:"reply_to_message_id,omitempty"`
	Type              string `json:"type"`
}

type sendMessageData struct {
	IsSent    bool   `json:"is_sent"`
	MessageID string `json:"message_id"`
}

type sendMessageResponse struct {
	Data    sendMessageData `json:"data"`
	Message string          `json:"message"`
}

type banRequest struct {
	BroadcasterUserID int64  `json:"broadcaster_user_id"`
	UserID            int64  `json:"user_id"`
	Duration          int    `json:"duration,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// ValidateToken asks Kick whether the bearer token is still active.
func (k *Kick) ValidateToken(ctx context.Context, token string) error {
	var resp introspectResponse
	if _, err := k.doKickRequest(ctx, kickRequest{
		Method: http.MethodPost,
		URL:    k.apiBase + "/public/v1/token/introspect",
		Token:  token,
	}, &resp); err != nil {
		return err
	}
	if !resp.Data.Active {
		return &chat.AuthError{Reason: "token is no longer active"}
	}
	return nil
}

// Perform executes one validated action on behalf of the token owner.
func (k *Kick) Perform(ctx context.Context, token string, channel ports.ChannelInfo, action chat.Action) (chat.Ack, error) {
	if err := action.Validate(); err != nil {
		return chat.Ack{}, err
	}

	switch action.Kind {
	case chat.ActionSendMessage:
		var resp sendMessageResponse
		if _, err := k.doKickRequest(ctx, kickRequest{
			Method: http.MethodPost,
			URL:    k.apiBase + "/public/v1/chat",
			Token:  token,
			Body: sendMessageRequest{
				BroadcasterUserID: channel.BroadcasterUserID,
				Content:           action.Content,
				ReplyToMessageID:  action.ReplyToID,
				Type:              "user",
			},
		}, &resp); err != nil {
			return chat.Ack{}, err
		}
		if !resp.Data.IsSent {
			reason := resp.Message
			if reason == "" {
				reason = "message was not sent"
			}
			return chat.Ack{}, &chat.RejectedError{Reason: reason}
		}
		k.log.Debug("Chat message sent", slog.String("channel", string(channel.Slug)), slog.String("id", resp.Data.MessageID))
		return chat.Ack{MessageID: resp.Data.MessageID, At: k.now()}, nil

	case chat.ActionDeleteMessage:
		if _, err := k.doKickRequest(ctx, kickRequest{
			Method: http.MethodDelete,
			URL:    k.apiBase + "/public/v1/chat/" + url.PathEscape(action.MessageID),
			Token:  token,
		}, nil); err != nil {
			return chat.Ack{}, err
		}
		return chat.Ack{MessageID: action.MessageID, At: k.now()}, nil

	case chat.ActionTimeoutUser, chat.ActionBanUser:
		userID, err := strconv.ParseInt(action.UserID, 10, 64)
		if err != nil {
			return chat.Ack{}, &chat.RejectedError{Reason: fmt.Sprintf("user id %q is not numeric", action.UserID)}
		}

		req := banRequest{
			BroadcasterUserID: channel.BroadcasterUserID,
			UserID:            userID,
			Reason:            action.Reason,
		}
		if action.Kind == chat.ActionTimeoutUser {
			req.Duration = int(action.Duration.Minutes())
		}

		if _, err := k.doKickRequest(ctx, kickRequest{
			Method: http.MethodPost,
			URL:    k.apiBase + "/public/v1/moderation/bans",
			Token:  token,
			Body:   req,
		}, nil); err != nil {
			return chat.Ack{}, err
		}
		k.log.Debug("Moderation action applied", slog.String("channel", string(channel.Slug)), slog.String("action", action.Kind.String()), slog.String("user", action.UserID))
		return chat.Ack{At: k.now()}, nil
	}

	return chat.Ack{}, &chat.RejectedError{Reason: "unknown action"}
}
