package chat

import (
	"fmt"
	"time"
)

type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAuthenticating
	PhaseLive
	PhaseReconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseLive:
		return "live"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Cause explains why a session entered Reconnecting.
type Cause string

const (
	CauseNone      Cause = ""
	CauseTransport Cause = "transport"
	CauseHeartbeat Cause = "heartbeat"
	CauseAuth      Cause = "auth"
	CauseProvider  Cause = "provider"
	CauseRequested Cause = "requested"
)

type SessionState struct {
	Phase       Phase
	Attempt     int
	NextRetryAt time.Time
	Cause       Cause
}

// Paused reports a session waiting for a new token or an explicit reconnect.
func (s SessionState) Paused() bool {
	return s.Phase == PhaseReconnecting && s.Cause == CauseAuth
}

func (s SessionState) String() string {
	if s.Phase != PhaseReconnecting {
		return s.Phase.String()
	}
	if s.Paused() {
		return fmt.Sprintf("reconnecting(attempt=%d, paused, cause=%s)", s.Attempt, s.Cause)
	}
	if s.NextRetryAt.IsZero() {
		return fmt.Sprintf("reconnecting(attempt=%d, immediate, cause=%s)", s.Attempt, s.Cause)
	}
	return fmt.Sprintf("reconnecting(attempt=%d, next=%s, cause=%s)", s.Attempt, s.NextRetryAt.Format(time.RFC3339), s.Cause)
}
