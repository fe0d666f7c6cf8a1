package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConflict is returned by a transactional update whose precondition no
	// longer holds; losing a claim race is reported this way.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned when a write violates a check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrUnavailable is returned for transient store failures that are safe to retry.
	ErrUnavailable = errors.New("persistence: store unavailable")
)
