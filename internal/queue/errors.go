package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned when an entry is added outside operating hours.
	ErrQueueClosed = errors.New("queue: closed")
	// ErrEntryNotFound is returned when the requested entry does not exist.
	ErrEntryNotFound = errors.New("queue: entry not found")
	// ErrInvalidPayload is returned when a scanned QR payload cannot be parsed.
	ErrInvalidPayload = errors.New("queue: invalid payload")
	// ErrWrongQRType is returned when a scanned payload is not a queue-entry QR.
	ErrWrongQRType = errors.New("queue: wrong qr type")
	// ErrCodeExpired is returned when a verification code's validity window has passed.
	ErrCodeExpired = errors.New("queue: code expired")
	// ErrNoEntryAvailable is returned by CallNext when no waiting entry can be claimed.
	ErrNoEntryAvailable = errors.New("queue: no entry available")
	// ErrAssignmentFailed is returned when code generation exhausts its collision budget.
	ErrAssignmentFailed = errors.New("queue: assignment failed")
	// ErrWorkOrderFailed is returned when the external work-order creation fails.
	ErrWorkOrderFailed = errors.New("queue: work order creation failed")
	// ErrTimerStartFailed is returned when the external service timer cannot be started.
	ErrTimerStartFailed = errors.New("queue: timer start failed")
	// ErrStoreUnavailable is returned once store retries are exhausted.
	ErrStoreUnavailable = errors.New("queue: store unavailable")
)

// InvalidTransitionError reports a status change the state graph forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("queue: invalid transition %s -> %s", e.From, e.To)
}

// InvalidStateError reports a validation attempt against an entry that is not
// in the required state.
type InvalidStateError struct {
	Actual Status
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("queue: invalid state %s", e.Actual)
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
