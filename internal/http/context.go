package http

import (
	"context"
	"log/slog"

	"github.com/example/workshop-queue/internal/logging"
)

type contextKey string

const (
	entryIDContextKey contextKey = "entry_id"
	codeContextKey    contextKey = "verification_code"
)

// ContextWithEntryID injects the entry identifier resolved from the request path.
func ContextWithEntryID(ctx context.Context, entryID string) context.Context {
	return context.WithValue(ctx, entryIDContextKey, entryID)
}

// EntryIDFromContext extracts an entry identifier previously associated with the context.
func EntryIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(entryIDContextKey).(string)
	return id, ok
}

// ContextWithCode injects the verification code resolved from the request path.
func ContextWithCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, codeContextKey, code)
}

// CodeFromContext extracts a verification code previously associated with the context.
func CodeFromContext(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(codeContextKey).(string)
	return code, ok
}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts a logger previously attached to the context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
