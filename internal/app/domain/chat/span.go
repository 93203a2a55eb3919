package chat

import "strings"

type SpanKind uint8

const (
	SpanText SpanKind = iota
	SpanEmote
	SpanMention
)

func (k SpanKind) String() string {
	switch k {
	case SpanText:
		return "text"
	case SpanEmote:
		return "emote"
	case SpanMention:
		return "mention"
	}
	return "unknown"
}

// Span is one lossless fragment of a message body. Raw always holds the
// literal source text, whatever the kind.
type Span struct {
	Kind     SpanKind
	Raw      string
	Provider Provider
	EmoteID  string
	UserID   string
}

func Text(s string) Span {
	return Span{Kind: SpanText, Raw: s}
}

func EmoteRef(provider Provider, emoteID, raw string) Span {
	return Span{Kind: SpanEmote, Raw: raw, Provider: provider, EmoteID: emoteID}
}

func Mention(userID, raw string) Span {
	return Span{Kind: SpanMention, Raw: raw, UserID: userID}
}

// Degrade turns an emote span into text carrying its literal.
func (s Span) Degrade() Span {
	if s.Kind != SpanEmote {
		return s
	}
	return Text(s.Raw)
}

func Concat(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Raw)
	}
	return b.String()
}
