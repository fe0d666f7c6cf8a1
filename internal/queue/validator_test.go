package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/workshop-queue/internal/testfixtures"
)

type timerStub struct {
	calls int
	err   error
}

func (s *timerStub) Start(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls++
	return fmt.Sprintf("timer-%d", s.calls), nil
}

func newTestValidator(store *testfixtures.MemoryQueueStore, timers ServiceTimerStarter) (*Validator, *testfixtures.Clock) {
	coordinator, clock, _ := newTestCoordinator(store, nil)
	return NewValidator(coordinator, timers, clock.NowFunc(), nil), clock
}

func qrPayload(id string) []byte {
	return []byte(fmt.Sprintf(`{"type":%q,"id":%q}`, QRPayloadType, id))
}

func calledFixture(expiry time.Time) testfixtures.EntryFixture {
	return testfixtures.NewEntryFixture(
		testfixtures.WithEntryStatus("called"),
		testfixtures.WithEntryAssignee("tech-1"),
		testfixtures.WithEntryWorkOrder("wo-1"),
		testfixtures.WithEntryExpiry(expiry),
	)
}

func TestValidator_ValidateQR_RejectsBadPayloads(t *testing.T) {
	t.Parallel()

	reference := testfixtures.ReferenceTime()
	waiting := testfixtures.NewEntryFixture(testfixtures.WithEntryExpiry(reference.Add(10 * time.Minute)))
	inService := testfixtures.NewEntryFixture(
		testfixtures.WithEntryStatus("in_service"),
		testfixtures.WithEntryAssignee("tech-1"),
		testfixtures.WithEntryWorkOrder("wo-2"),
		testfixtures.WithEntryExpiry(reference.Add(10*time.Minute)),
	)
	expired := calledFixture(reference.Add(-time.Minute))

	store := testfixtures.NewMemoryQueueStore()
	store.Seed(waiting.Record(), inService.Record(), expired.Record())
	validator, _ := newTestValidator(store, &timerStub{})

	cases := []struct {
		name    string
		payload []byte
		want    error
	}{
		{name: "malformed json", payload: []byte("{not json"), want: ErrInvalidPayload},
		{name: "missing id", payload: []byte(fmt.Sprintf(`{"type":%q}`, QRPayloadType)), want: ErrInvalidPayload},
		{name: "blank id", payload: []byte(fmt.Sprintf(`{"type":%q,"id":"  "}`, QRPayloadType)), want: ErrInvalidPayload},
		{name: "wrong qr type", payload: []byte(`{"type":"work-order","id":"entry-1"}`), want: ErrWrongQRType},
		{name: "unknown entry", payload: qrPayload("entry-unknown"), want: ErrEntryNotFound},
		{name: "expired code", payload: qrPayload(expired.ID), want: ErrCodeExpired},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := validator.ValidateQR(context.Background(), tc.payload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("waiting entry reports invalid state", func(t *testing.T) {
		t.Parallel()

		_, err := validator.ValidateQR(context.Background(), qrPayload(waiting.ID))
		var stateErr *InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected InvalidStateError, got %v", err)
		}
		if stateErr.Actual != StatusWaiting {
			t.Fatalf("expected waiting in error, got %s", stateErr.Actual)
		}
	})

	t.Run("in_service entry reports invalid state", func(t *testing.T) {
		t.Parallel()

		_, err := validator.ValidateQR(context.Background(), qrPayload(inService.ID))
		var stateErr *InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected InvalidStateError, got %v", err)
		}
	})
}

func TestValidator_ValidateQR_TransitionsToInService(t *testing.T) {
	t.Parallel()

	fixture := calledFixture(testfixtures.ReferenceTime().Add(10 * time.Minute))
	store := testfixtures.NewMemoryQueueStore()
	store.Seed(fixture.Record())

	timers := &timerStub{}
	validator, _ := newTestValidator(store, timers)

	result, err := validator.ValidateQR(context.Background(), qrPayload(fixture.ID))
	if err != nil {
		t.Fatalf("ValidateQR failed: %v", err)
	}
	if result.Entry.Status != StatusInService {
		t.Fatalf("expected in_service, got %s", result.Entry.Status)
	}
	if !result.TimerStarted {
		t.Fatalf("expected timer started")
	}
	if result.TimerHandle != "timer-1" {
		t.Fatalf("expected timer handle, got %q", result.TimerHandle)
	}

	record, _ := store.Snapshot(fixture.ID)
	if record.Status != "in_service" {
		t.Fatalf("expected persisted in_service, got %s", record.Status)
	}
}

func TestValidator_ValidateQR_TimerFailureLeavesEntryCalled(t *testing.T) {
	t.Parallel()

	fixture := calledFixture(testfixtures.ReferenceTime().Add(10 * time.Minute))
	store := testfixtures.NewMemoryQueueStore()
	store.Seed(fixture.Record())

	validator, _ := newTestValidator(store, &timerStub{err: errors.New("timer backend down")})

	_, err := validator.ValidateQR(context.Background(), qrPayload(fixture.ID))
	if !errors.Is(err, ErrTimerStartFailed) {
		t.Fatalf("expected ErrTimerStartFailed, got %v", err)
	}

	record, _ := store.Snapshot(fixture.ID)
	if record.Status != "called" {
		t.Fatalf("expected entry left called for a retry scan, got %s", record.Status)
	}
}

func TestValidator_ValidateQR_StaleRescanStartsNoSecondTimer(t *testing.T) {
	t.Parallel()

	fixture := calledFixture(testfixtures.ReferenceTime().Add(10 * time.Minute))
	store := testfixtures.NewMemoryQueueStore()
	store.Seed(fixture.Record())

	timers := &timerStub{}
	validator, _ := newTestValidator(store, timers)

	if _, err := validator.ValidateQR(context.Background(), qrPayload(fixture.ID)); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}

	_, err := validator.ValidateQR(context.Background(), qrPayload(fixture.ID))
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError on rescan, got %v", err)
	}
	if timers.calls != 1 {
		t.Fatalf("expected a single timer start, got %d", timers.calls)
	}
}

func TestValidator_CanValidate(t *testing.T) {
	t.Parallel()

	reference := testfixtures.ReferenceTime()
	validator, _ := newTestValidator(testfixtures.NewMemoryQueueStore(), nil)

	t.Run("called and fresh", func(t *testing.T) {
		t.Parallel()
		entry := QueueEntry{Status: StatusCalled, ExpiresAt: reference.Add(time.Minute)}
		if err := validator.CanValidate(entry); err != nil {
			t.Fatalf("expected ok, got %v", err)
		}
	})

	t.Run("expiry is exclusive at the boundary", func(t *testing.T) {
		t.Parallel()
		entry := QueueEntry{Status: StatusCalled, ExpiresAt: reference}
		if err := validator.CanValidate(entry); !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired at the boundary, got %v", err)
		}
	})
}

func TestValidator_ValidateQR_NilTimerStarterSkipsTimer(t *testing.T) {
	t.Parallel()

	fixture := calledFixture(testfixtures.ReferenceTime().Add(10 * time.Minute))
	store := testfixtures.NewMemoryQueueStore()
	store.Seed(fixture.Record())

	validator, _ := newTestValidator(store, nil)

	result, err := validator.ValidateQR(context.Background(), qrPayload(fixture.ID))
	if err != nil {
		t.Fatalf("ValidateQR failed: %v", err)
	}
	if result.TimerStarted {
		t.Fatalf("expected no timer without a starter")
	}
	if result.Entry.Status != StatusInService {
		t.Fatalf("expected in_service, got %s", result.Entry.Status)
	}
}
