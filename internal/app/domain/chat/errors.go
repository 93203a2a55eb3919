package chat

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidChannel  = errors.New("invalid channel slug")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrDisconnected    = errors.New("session is not live")
)

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter <= 0 {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Status == 0 {
		return "rejected: " + e.Reason
	}
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Reason)
}

// AuthError is a token rejected by the provider. It matches ErrUnauthenticated.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth rejected: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthenticated
}
