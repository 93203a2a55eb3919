package decoder

import (
	"krosty/internal/app/domain/catalog"
	"krosty/internal/app/domain/chat"
	"strings"
)

const kickEmotePrefix = "[emote:"

// Tokenize splits a message body into spans. Every byte of body ends up in
// exactly one span, so chat.Concat(Tokenize(body, view)) == body.
func Tokenize(body string, view *catalog.Catalog) []chat.Span {
	if view == nil {
		view = catalog.Empty("")
	}
	t := tokenizer{body: body, view: view}
	return t.run()
}

type tokenizer struct {
	body  string
	view  *catalog.Catalog
	spans []chat.Span
	text  int
}

func (t *tokenizer) run() []chat.Span {
	b := t.body

	for i := 0; i < len(b); {
		if b[i] == '[' {
			if end, ok := t.kickEmote(i); ok {
				i = end
				continue
			}
		}
		if b[i] == ':' && wordStart(b, i) {
			if end, ok := t.colonEmote(i); ok {
				i = end
				continue
			}
		}
		if b[i] == '@' && (i == 0 || !isNameByte(b[i-1])) {
			if end, ok := t.mention(i); ok {
				i = end
				continue
			}
		}
		if wordStart(b, i) && !isSpace(b[i]) {
			if end, ok := t.bareEmote(i); ok {
				i = end
				continue
			}
		}
		i++
	}

	t.flush(len(b))
	return t.spans
}

func (t *tokenizer) flush(end int) {
	if end > t.text {
		t.spans = append(t.spans, chat.Text(t.body[t.text:end]))
	}
}

func (t *tokenizer) emit(start, end int, span chat.Span) int {
	t.flush(start)
	t.spans = append(t.spans, span)
	t.text = end
	return end
}

// [emote:<id>:<name>]
func (t *tokenizer) kickEmote(i int) (int, bool) {
	rest := t.body[i:]
	if !strings.HasPrefix(rest, kickEmotePrefix) {
		return 0, false
	}
	closing := strings.IndexByte(rest, ']')
	if closing < 0 {
		return 0, false
	}
	inner := rest[len(kickEmotePrefix):closing]
	if strings.ContainsAny(inner, " \t\r\n[") {
		return 0, false
	}
	id, _, ok := strings.Cut(inner, ":")
	if !ok || id == "" || !isDigits(id) {
		return 0, false
	}

	end := i + closing + 1
	raw := t.body[i:end]
	if _, found := t.view.Lookup(chat.ProviderKick, id); found {
		return t.emit(i, end, chat.EmoteRef(chat.ProviderKick, id, raw)), true
	}
	return t.emit(i, end, chat.Text(raw)), true
}

// :<name>: as a whole word
func (t *tokenizer) colonEmote(i int) (int, bool) {
	b := t.body
	j := i + 1
	for j < len(b) && isNameByte(b[j]) {
		j++
	}
	if j == i+1 || j >= len(b) || b[j] != ':' {
		return 0, false
	}
	if j+1 < len(b) && !isSpace(b[j+1]) {
		return 0, false
	}

	end := j + 1
	raw := b[i:end]
	name := b[i+1 : j]
	if e, found := t.view.Lookup(chat.ProviderSevenTV, name); found {
		return t.emit(i, end, chat.EmoteRef(chat.ProviderSevenTV, e.EmoteID, raw)), true
	}
	if e, found := t.view.LookupName(chat.ProviderSevenTV, name); found {
		return t.emit(i, end, chat.EmoteRef(chat.ProviderSevenTV, e.EmoteID, raw)), true
	}
	return t.emit(i, end, chat.Text(raw)), true
}

// @login; Kick frames carry no user ids for mentions, the login is the id.
func (t *tokenizer) mention(i int) (int, bool) {
	b := t.body
	j := i + 1
	for j < len(b) && isNameByte(b[j]) {
		j++
	}
	if j == i+1 {
		return 0, false
	}
	return t.emit(i, j, chat.Mention(strings.ToLower(b[i+1:j]), b[i:j])), true
}

// a whole word equal to a 7TV emote name
func (t *tokenizer) bareEmote(i int) (int, bool) {
	b := t.body
	j := i
	for j < len(b) && !isSpace(b[j]) {
		j++
	}
	word := b[i:j]
	e, found := t.view.LookupName(chat.ProviderSevenTV, word)
	if !found {
		return 0, false
	}
	return t.emit(i, j, chat.EmoteRef(chat.ProviderSevenTV, e.EmoteID, word)), true
}

func wordStart(b string, i int) bool {
	return i == 0 || isSpace(b[i-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isNameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
