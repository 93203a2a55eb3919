package handlers

import (
	"krosty/internal/app/domain/chat"
	"krosty/internal/app/domain/session"
	"time"
)

type stateView struct {
	Phase       string     `json:"phase"`
	Attempt     int        `json:"attempt,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Cause       string     `json:"cause,omitempty"`
	Paused      bool       `json:"paused,omitempty"`
}

func newStateView(st chat.SessionState) stateView {
	v := stateView{
		Phase:   st.Phase.String(),
		Attempt: st.Attempt,
		Cause:   string(st.Cause),
		Paused:  st.Paused(),
	}
	if !st.NextRetryAt.IsZero() {
		next := st.NextRetryAt
		v.NextRetryAt = &next
	}
	return v
}

type sessionView struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	State   stateView `json:"state"`
}

func newSessionView(s *session.Session) sessionView {
	return sessionView{
		ID:      s.ID().String(),
		Channel: string(s.Channel()),
		State:   newStateView(s.State()),
	}
}

type eventView struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data"`
}

type statusData struct {
	State stateView `json:"state"`
	At    time.Time `json:"at"`
}

func newEventView(ev chat.Event) eventView {
	v := eventView{
		Type:    chat.EventType(ev),
		Channel: string(ev.EventChannel()),
		Data:    ev,
	}
	if st, ok := ev.(chat.ConnectionStatusChanged); ok {
		v.Data = statusData{State: newStateView(st.State), At: st.At}
	}
	return v
}
