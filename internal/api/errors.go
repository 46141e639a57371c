package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	// ErrUnauthorized matches a 401 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound matches a 404 response.
	ErrNotFound = errors.New("not found")
)

// Error is a non-2xx response from the proxy.
type Error struct {
	Status             int
	Message            string
	NeedsLogin         bool
	NeedsConfiguration bool
}

// NewError builds an Error from a decoded error body.
func NewError(status int, body ErrorResponse) *Error {
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed (HTTP %d)", status)
	}
	return &Error{
		Status:             status,
		Message:            msg,
		NeedsLogin:         body.NeedsLogin,
		NeedsConfiguration: body.NeedsConfiguration,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("proxy: %s (HTTP %d)", e.Message, e.Status)
}

// Is reports whether the status code corresponds to target.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}
