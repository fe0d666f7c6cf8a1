package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/workshop-queue/internal/logging"
	"github.com/example/workshop-queue/internal/persistence"
	"github.com/example/workshop-queue/internal/retry"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.Or(ctx, base)

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrQueueClosed):
		return "queue_closed"
	case errors.Is(err, ErrEntryNotFound):
		return "entry_not_found"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrWrongQRType):
		return "wrong_qr_type"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrNoEntryAvailable):
		return "no_entry_available"
	case errors.Is(err, ErrAssignmentFailed):
		return "assignment_failed"
	case errors.Is(err, ErrWorkOrderFailed):
		return "work_order_failed"
	case errors.Is(err, ErrTimerStartFailed):
		return "timer_start_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, persistence.ErrConflict):
		return "conflict"
	}

	var transitionErr *InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return "invalid_transition"
	}
	var stateErr *InvalidStateError
	if errors.As(err, &stateErr) {
		return "invalid_state"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var exhausted *retry.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return "retries_exhausted"
	}

	return "unexpected"
}
