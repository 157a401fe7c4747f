package monnify

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("monnify: resource not found")

// APIError describes a failed provider call. StatusCode is zero when no
// usable response came back.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("monnify %s: %v", e.Operation, e.Err)
	case e.Message != "":
		return fmt.Sprintf("monnify %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("monnify %s: status %d", e.Operation, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports whether the outcome of the call is unknown or the
// provider asked us to come back later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// IsRejected reports a definitive business rejection: the request reached the
// provider and was refused.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

// Message returns the provider's message when err carries one.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
