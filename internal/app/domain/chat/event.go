package chat

import "time"

// Event is the closed set of things a session publishes onto the bus.
type Event interface {
	EventChannel() ChannelID
	isEvent()
}

type MessageReceived struct {
	Channel ChannelID
	Message ChatMessage
}

type MessageDeleted struct {
	Channel   ChannelID
	MessageID string
}

type UserTimedOut struct {
	Channel  ChannelID
	UserID   string
	Username string
	Until    time.Time
}

// UserBanned is a permanent ban; temporary ones arrive as UserTimedOut.
type UserBanned struct {
	Channel  ChannelID
	UserID   string
	Username string
}

type UserUnbanned struct {
	Channel  ChannelID
	UserID   string
	Username string
}

type ChatCleared struct {
	Channel ChannelID
}

type ConnectionStatusChanged struct {
	Channel ChannelID
	State   SessionState
	At      time.Time
}

// Overflow is synthesized per cursor when events were dropped for it.
type Overflow struct {
	Dropped int
}

func (e MessageReceived) EventChannel() ChannelID         { return e.Channel }
func (e MessageDeleted) EventChannel() ChannelID          { return e.Channel }
func (e UserTimedOut) EventChannel() ChannelID            { return e.Channel }
func (e UserBanned) EventChannel() ChannelID              { return e.Channel }
func (e UserUnbanned) EventChannel() ChannelID            { return e.Channel }
func (e ChatCleared) EventChannel() ChannelID             { return e.Channel }
func (e ConnectionStatusChanged) EventChannel() ChannelID { return e.Channel }
func (e Overflow) EventChannel() ChannelID                { return "" }

func (MessageReceived) isEvent()         {}
func (MessageDeleted) isEvent()          {}
func (UserTimedOut) isEvent()            {}
func (UserBanned) isEvent()              {}
func (UserUnbanned) isEvent()            {}
func (ChatCleared) isEvent()             {}
func (ConnectionStatusChanged) isEvent() {}
func (Overflow) isEvent()                {}

// EventType is the stable wire name used by the bridge and logs.
func EventType(e Event) string {
	switch e.(type) {
	case MessageReceived:
		return "message"
	case MessageDeleted:
		return "message_deleted"
	case UserTimedOut:
		return "user_timed_out"
	case UserBanned:
		return "user_banned"
	case UserUnbanned:
		return "user_unbanned"
	case ChatCleared:
		return "chat_cleared"
	case ConnectionStatusChanged:
		return "connection_status"
	case Overflow:
		return "overflow"
	}
	return "unknown"
}
