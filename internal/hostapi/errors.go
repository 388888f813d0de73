package hostapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches 401 replies.
	ErrUnauthorized = errors.New("not signed in")
	// ErrNotFound matches 404 replies.
	ErrNotFound = errors.New("not found")
	// ErrExpired matches 410 replies: the image passed its expiry and the
	// host deleted it.
	ErrExpired = errors.New("image expired")
	// ErrMissingFields, ErrPasswordTooShort and ErrPasswordMismatch are
	// returned before contacting the host.
	ErrMissingFields    = errors.New("please fill in all fields")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// APIError is a non-success reply from the host.
type APIError struct {
	StatusCode int
	// Message is the host's "error" field, or the status text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("host returned %d: %s", e.StatusCode, e.Message)
}

// Is maps well-known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrExpired:
		return e.StatusCode == http.StatusGone
	}
	return false
}

func newAPIError(status int, env envelope) *APIError {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
