package http

import (
	"context"
	"log/slog"

	"github.com/example/workshop-queue/internal/logging"
)

// handlerLogger resolves the request logger and scopes it to a handler
// operation.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"handler", handlerName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logging.Or(ctx, fallback).With(pairs...)
}
