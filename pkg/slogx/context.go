package slogx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithContext returns a child of ctx that carries l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by WithContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, _ := ctx.Value(loggerKey{}).(*slog.Logger); l != nil {
		return l
	}
	return slog.Default()
}

// WithRequestID adds req_id to the context logger. A request keeps one id
// across its retry and the refresh it triggers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("req_id", id))
}
