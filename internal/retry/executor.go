// Package retry provides the single retry policy used for store operations.
// All coordinator writes funnel through an Executor so backoff behavior is
// uniform and testable in isolation.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Predicate reports whether an error is transient and worth retrying.
type Predicate func(err error) bool

// RetriesExhaustedError wraps the final error once every attempt has failed.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Last)
}

// Unwrap exposes the final underlying error for errors.Is / errors.As.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// Executor retries an operation with capped exponential backoff.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	multiplier  float64
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	onAttempt   func(attempt int)
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper overrides the backoff wait, letting tests run without wall-clock
// delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithAttemptObserver registers a callback invoked once per attempt, used to
// feed the retry metrics.
func WithAttemptObserver(onAttempt func(attempt int)) Option {
	return func(e *Executor) {
		e.onAttempt = onAttempt
	}
}

// NewExecutor constructs an Executor. Non-positive arguments fall back to
// defaults: 3 attempts, 100ms base delay, 2x multiplier, 5s cap.
func NewExecutor(maxAttempts int, baseDelay time.Duration, multiplier float64, maxDelay time.Duration, opts ...Option) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if multiplier <= 1 {
		multiplier = 2.0
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	executor := &Executor{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		multiplier:  multiplier,
		maxDelay:    maxDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. Non-retryable errors propagate unwrapped on
// first occurrence; exhaustion returns a *RetriesExhaustedError wrapping the
// last error seen.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error, retryable Predicate) error {
	if op == nil {
		return fmt.Errorf("retry: operation is nil")
	}
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	delay := e.baseDelay
	var lastErr error

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
			delay = time.Duration(float64(delay) * e.multiplier)
			if delay > e.maxDelay {
				delay = e.maxDelay
			}
		}

		if e.onAttempt != nil {
			e.onAttempt(attempt + 1)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	return &RetriesExhaustedError{Attempts: e.maxAttempts, Last: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
