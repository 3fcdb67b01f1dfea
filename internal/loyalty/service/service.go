// Package service wraps backend endpoints in typed calls.
package service

import (
	"context"
	"net/url"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/apiclient"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
)

// MsgUnexpected is shown when the backend gave no usable message.
const MsgUnexpected = "An unexpected error occurred"

// API is the slice of apiclient.Client the services need.
type API interface {
	Do(ctx context.Context, method, path string, query url.Values, in, out any) error
	DoOnce(ctx context.Context, method, path string, in, out any) error
	Public(ctx context.Context, method, path string, in, out any) error
	Refresh(ctx context.Context, refresh string) (domain.TokenPair, error)
}

var _ API = (*apiclient.Client)(nil)

// Error is a failure with a message fit for showing to staff. The cause is
// kept for errors.Is/As.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// userError maps err to the backend's message, else MsgUnexpected.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if msg, ok := apiclient.MessageOf(err); ok {
		return &Error{Message: msg, Err: err}
	}
	return &Error{Message: MsgUnexpected, Err: err}
}
