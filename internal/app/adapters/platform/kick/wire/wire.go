package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscribe             = "pusher:subscribe"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventError                 = "pusher:error"

	EventChatMessage    = `App\Events\ChatMessageEvent`
	EventMessageDeleted = `App\Events\MessageDeletedEvent`
	EventUserBanned     = `App\Events\UserBannedEvent`
	EventUserUnbanned   = `App\Events\UserUnbannedEvent`
	EventChatroomClear  = `App\Events\ChatroomClearEvent`
)

// IsInformational reports events that are known but carry nothing the
// engine acts on.
func IsInformational(event string) bool {
	switch event {
	case `App\Events\ChatroomUpdatedEvent`,
		`App\Events\SubscriptionEvent`,
		`App\Events\GiftedSubscriptionsEvent`,
		`App\Events\StreamHostEvent`,
		`App\Events\PinnedMessageCreatedEvent`,
		`App\Events\PinnedMessageDeletedEvent`,
		`App\Events\PollUpdateEvent`,
		`App\Events\PollDeleteEvent`,
		`App\Events\LivestreamUpdated`,
		`App\Events\StreamerIsLive`,
		`App\Events\StopStreamBroadcast`,
		`RewardRedeemedEvent`,
		`KicksGifted`,
		"pusher_internal:member_added",
		"pusher_internal:member_removed":
		return true
	}
	return false
}

// Envelope is the outer Pusher frame.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Payload unwraps Data. Pusher usually sends it as a JSON encoded string,
// sometimes as a bare object.
func (e Envelope) Payload() ([]byte, error) {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '"' {
		return data, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unquote data: %w", err)
	}
	return []byte(s), nil
}

type ConnectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type Error struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// ID accepts both numeric and string identifiers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Slug     string `json:"slug"`
}

type Badge struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type Identity struct {
	Color  string  `json:"color"`
	Badges []Badge `json:"badges"`
}

type Sender struct {
	User
	Identity Identity `json:"identity"`
}

type OriginalMessage struct {
	ID      ID     `json:"id"`
	Content string `json:"content"`
}

type Metadata struct {
	OriginalSender  *User            `json:"original_sender"`
	OriginalMessage *OriginalMessage `json:"original_message"`
}

type ChatMessage struct {
	ID         ID        `json:"id"`
	ChatroomID ID        `json:"chatroom_id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	CreatedAt  string    `json:"created_at"`
	Sender     Sender    `json:"sender"`
	Metadata   *Metadata `json:"metadata"`
}

type MessageRef struct {
	ID ID `json:"id"`
}

type MessageDeleted struct {
	ID      ID         `json:"id"`
	Message MessageRef `json:"message"`
}

type UserBanned struct {
	ID        ID     `json:"id"`
	User      User   `json:"user"`
	BannedBy  *User  `json:"banned_by"`
	Permanent bool   `json:"permanent"`
	Duration  int    `json:"duration"`
	ExpiresAt string `json:"expires_at"`
}

type UserUnbanned struct {
	ID         ID    `json:"id"`
	User       User  `json:"user"`
	UnbannedBy *User `json:"unbanned_by"`
	Permanent  bool  `json:"permanent"`
}

// ChatroomChannel is the Pusher channel carrying a chatroom's messages.
func ChatroomChannel(chatroomID int64) string {
	return "chatrooms." + strconv.FormatInt(chatroomID, 10) + ".v2"
}

type subscribeData struct {
	Auth    string `json:"auth"`
	Channel string `json:"channel"`
}

type subscribeFrame struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

func Subscribe(channel string) []byte {
	return mustMarshal(subscribeFrame{
		Event: EventSubscribe,
		Data:  subscribeData{Channel: channel},
	})
}

func Ping() []byte {
	return []byte(`{"event":"pusher:ping","data":{}}`)
}

func Pong() []byte {
	return []byte(`{"event":"pusher:pong","data":{}}`)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
