// Package logging carries request-scoped slog loggers through contexts so the
// HTTP middleware and the queue services share one logger per request.
package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// ContextWithLogger returns a derived context carrying the logger. A nil
// logger or context is returned unchanged.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger attached to the context, or nil when the
// context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}

// Or resolves a usable logger: the context logger when present, then the
// provided base, then slog.Default.
func Or(ctx context.Context, base *slog.Logger) *slog.Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	if base != nil {
		return base
	}
	return slog.Default()
}
