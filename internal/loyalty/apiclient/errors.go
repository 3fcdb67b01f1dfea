package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRefreshToken is returned for a 401 when there is nothing to refresh
	// with. No refresh call is made.
	ErrNoRefreshToken = errors.New("apiclient: unauthenticated, no refresh token available")

	// ErrRefreshThrottled is returned when refresh attempts exceed the
	// configured rate. It counts as a failed refresh.
	ErrRefreshThrottled = errors.New("apiclient: refresh throttled")

	// ErrDecode wraps malformed response bodies.
	ErrDecode = errors.New("apiclient: malformed response")
)

// APIError is a non-2xx response from the backend. Message carries the
// backend's {"message": ...} when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("apiclient: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err means the session is no longer usable.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized || errors.Is(err, ErrNoRefreshToken)
}

// MessageOf returns the backend's message for err, if any.
func MessageOf(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}
