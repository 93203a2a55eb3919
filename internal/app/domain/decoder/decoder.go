package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"krosty/internal/app/adapters/platform/kick/wire"
	"krosty/internal/app/domain/catalog"
	"krosty/internal/app/domain/chat"
	"strings"
	"time"
)

var ErrUnknownEvent = errors.New("unknown event")

// DecodeError is returned for frames that cannot be turned into a Frame.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return "decode frame: " + e.Err.Error()
	}
	return fmt.Sprintf("decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Kind uint8

const (
	KindMessage Kind = iota + 1
	KindControl
	KindHandshake
	KindSubscribed
	KindPing
	KindPong
	KindProviderError
	KindInformational
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindControl:
		return "control"
	case KindHandshake:
		return "handshake"
	case KindSubscribed:
		return "subscribed"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindProviderError:
		return "provider_error"
	case KindInformational:
		return "informational"
	}
	return "unknown"
}

type Handshake struct {
	SocketID        string
	ActivityTimeout time.Duration
}

type ProviderError struct {
	Code    int
	Message string
}

// Frame is one decoded inbound frame. Event is set for KindMessage and
// KindControl, Handshake for KindHandshake, Error for KindProviderError.
type Frame struct {
	Kind      Kind
	Name      string
	Event     chat.Event
	Handshake Handshake
	Error     ProviderError
}

// Decoder is pure: the same bytes and catalog always give the same Frame.
type Decoder struct {
	channel chat.ChannelID
}

func New(channel chat.ChannelID) *Decoder {
	return &Decoder{channel: channel}
}

func (d *Decoder) Decode(raw []byte, view *catalog.Catalog, receivedAt time.Time) (Frame, error) {
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, &DecodeError{Err: err}
	}
	if env.Event == "" {
		return Frame{}, &DecodeError{Err: errors.New("missing event name")}
	}

	payload, err := env.Payload()
	if err != nil {
		return Frame{}, &DecodeError{Event: env.Event, Err: err}
	}

	f := Frame{Name: env.Event}

	switch env.Event {
	case wire.EventConnectionEstablished:
		var ce wire.ConnectionEstablished
		if err := unmarshal(payload, &ce); err != nil {
			return Frame{}, &DecodeError{Event: env.Event, Err: err}
		}
		f.Kind = KindHandshake
		f.Handshake = Handshake{
			SocketID:        ce.SocketID,
			ActivityTimeout: time.Duration(ce.ActivityTimeout) * time.Second,
		}
	case wire.EventSubscriptionSucceeded:
		f.Kind = KindSubscribed
	case wire.EventPing:
		f.Kind = KindPing
	case wire.EventPong:
		f.Kind = KindPong
	case wire.EventError:
		var pe wire.Error
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &pe); err != nil {
				return Frame{}, &DecodeError{Event: env.Event, Err: err}
			}
		}
		f.Kind = KindProviderError
		f.Error.Message = pe.Message
		if pe.Code != nil {
			f.Error.Code = *pe.Code
		}
	case wire.EventChatMessage:
		var m wire.ChatMessage
		if err := unmarshal(payload, &m); err != nil {
			return Frame{}, &DecodeError{Event: env.Event, Err: err}
		}
		if m.ID == "" {
			return Frame{}, &DecodeError{Event: env.Event, Err: errors.New("message without id")}
		}
		f.Kind = KindMessage
		f.Event = chat.MessageReceived{Channel: d.channel, Message: d.message(m, view, receivedAt)}
	case wire.EventMessageDeleted:
		var m wire.MessageDeleted
		if err := unmarshal(payload, &m); err != nil {
			return Frame{}, &DecodeError{Event: env.Event, Err: err}
		}
		f.Kind = KindControl
		f.Event = chat.MessageDeleted{Channel: d.channel, MessageID: string(m.Message.ID)}
	case wire.EventUserBanned:
		var m wire.UserBanned
		if err := unmarshal(payload, &m); err != nil {
			return Frame{}, &DecodeError{Event: env.Event, Err: err}
		}
		f.Kind = KindControl
		f.Event = d.ban(m, receivedAt)
	case wire.EventUserUnbanned:
		var m wire.UserUnbanned
		if err := unmarshal(payload, &m); err != nil {
			return Frame{}, &DecodeError{Event: env.Event, Err: err}
		}
		f.Kind = KindControl
		f.Event = chat.UserUnbanned{Channel: d.channel, UserID: string(m.User.ID), Username: m.User.Username}
	case wire.EventChatroomClear:
		f.Kind = KindControl
		f.Event = chat.ChatCleared{Channel: d.channel}
	default:
		if !wire.IsInformational(env.Event) {
			return Frame{}, &DecodeError{Event: env.Event, Err: ErrUnknownEvent}
		}
		f.Kind = KindInformational
	}

	return f, nil
}

func (d *Decoder) message(m wire.ChatMessage, view *catalog.Catalog, receivedAt time.Time) chat.ChatMessage {
	msg := chat.ChatMessage{
		ID:                string(m.ID),
		Channel:           d.channel,
		AuthorID:          string(m.Sender.ID),
		AuthorDisplayName: m.Sender.Username,
		AuthorColor:       m.Sender.Identity.Color,
		SentAt:            parseTime(m.CreatedAt, receivedAt),
		Body:              Tokenize(m.Content, view),
	}

	for _, b := range m.Sender.Identity.Badges {
		ref := chat.BadgeRef{Type: b.Type, Text: b.Text, Count: b.Count}
		if b.Type == "subscriber" && view != nil {
			if img, ok := view.SubscriberBadge(b.Count); ok {
				ref.ImageURL = img.URL
			}
		}
		msg.Badges = append(msg.Badges, ref)
	}

	if m.Type == "reply" && m.Metadata != nil && m.Metadata.OriginalMessage != nil {
		reply := &chat.ReplyRef{
			MessageID: string(m.Metadata.OriginalMessage.ID),
			Excerpt:   m.Metadata.OriginalMessage.Content,
		}
		if s := m.Metadata.OriginalSender; s != nil {
			reply.AuthorID = string(s.ID)
			reply.AuthorDisplayName = s.Username
		}
		msg.ReplyTo = reply
	}

	return msg
}

func (d *Decoder) ban(m wire.UserBanned, receivedAt time.Time) chat.Event {
	if m.Permanent {
		return chat.UserBanned{Channel: d.channel, UserID: string(m.User.ID), Username: m.User.Username}
	}

	until := parseTime(m.ExpiresAt, time.Time{})
	if until.IsZero() {
		until = receivedAt.Add(time.Duration(m.Duration) * time.Minute)
	}
	return chat.UserTimedOut{Channel: d.channel, UserID: string(m.User.ID), Username: m.User.Username, Until: until}
}

func unmarshal(payload []byte, v any) error {
	if len(payload) == 0 {
		return errors.New("empty data")
	}
	return json.Unmarshal(payload, v)
}

func parseTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
