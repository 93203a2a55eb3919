package chat

import (
	"regexp"
	"strings"
	"time"
)

// ChannelID is the Kick channel slug a session is bound to.
type ChannelID string

var channelPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ParseChannelID normalizes a slug and validates it locally.
func ParseChannelID(raw string) (ChannelID, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if !channelPattern.MatchString(slug) {
		return "", ErrInvalidChannel
	}
	return ChannelID(slug), nil
}

func (c ChannelID) String() string { return string(c) }

type ChatMessage struct {
	ID                string
	Channel           ChannelID
	AuthorID          string
	AuthorDisplayName string
	AuthorColor       string
	SentAt            time.Time
	Body              []Span
	Badges            []BadgeRef
	ReplyTo           *ReplyRef
}

// Text reproduces the original message body.
func (m ChatMessage) Text() string {
	return Concat(m.Body)
}

type ReplyRef struct {
	MessageID         string
	AuthorID          string
	AuthorDisplayName string
	Excerpt           string
}

type BadgeRef struct {
	Type     string
	Text     string
	Count    int
	ImageURL string
}
