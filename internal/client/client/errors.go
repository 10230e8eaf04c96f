package client

import (
	"errors"
	"fmt"
)

var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServer             = errors.New("server error")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ServerError is a non-2xx answer other than 401/403.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Message)
}

func (e *ServerError) Unwrap() error { return ErrServer }

// IsRetryable reports whether err is worth retrying for idempotent calls.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
