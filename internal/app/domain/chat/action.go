package chat

import (
	"time"
	"unicode/utf8"
)

const (
	MaxMessageRunes = 500
	MaxTimeout      = 7 * 24 * time.Hour
)

type ActionKind uint8

const (
	ActionSendMessage ActionKind = iota + 1
	ActionDeleteMessage
	ActionTimeoutUser
	ActionBanUser
)

func (k ActionKind) String() string {
	switch k {
	case ActionSendMessage:
		return "send_message"
	case ActionDeleteMessage:
		return "delete_message"
	case ActionTimeoutUser:
		return "timeout_user"
	case ActionBanUser:
		return "ban_user"
	}
	return "unknown"
}

// Action is an outbound intent issued by a consumer.
type Action struct {
	Kind      ActionKind
	Content   string
	ReplyToID string
	MessageID string
	UserID    string
	Duration  time.Duration
	Reason    string
}

type Ack struct {
	MessageID string
	At        time.Time
}

func SendMessage(content string) Action {
	return Action{Kind: ActionSendMessage, Content: content}
}

func Reply(content, parentID string) Action {
	return Action{Kind: ActionSendMessage, Content: content, ReplyToID: parentID}
}

func DeleteMessage(messageID string) Action {
	return Action{Kind: ActionDeleteMessage, MessageID: messageID}
}

func TimeoutUser(userID string, d time.Duration, reason string) Action {
	return Action{Kind: ActionTimeoutUser, UserID: userID, Duration: d, Reason: reason}
}

func BanUser(userID, reason string) Action {
	return Action{Kind: ActionBanUser, UserID: userID, Reason: reason}
}

// Validate runs the checks that never need the network.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionSendMessage:
		n := utf8.RuneCountInString(a.Content)
		if n == 0 {
			return &RejectedError{Reason: "empty message"}
		}
		if n > MaxMessageRunes {
			return &RejectedError{Reason: "message longer than 500 characters"}
		}
	case ActionDeleteMessage:
		if a.MessageID == "" {
			return &RejectedError{Reason: "message id is required"}
		}
	case ActionTimeoutUser:
		if a.UserID == "" {
			return &RejectedError{Reason: "user id is required"}
		}
		if a.Duration < time.Minute || a.Duration > MaxTimeout {
			return &RejectedError{Reason: "timeout must be between 1 minute and 7 days"}
		}
	case ActionBanUser:
		if a.UserID == "" {
			return &RejectedError{Reason: "user id is required"}
		}
	default:
		return &RejectedError{Reason: "unknown action"}
	}
	return nil
}
