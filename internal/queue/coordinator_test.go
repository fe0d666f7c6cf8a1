package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/workshop-queue/internal/cache"
	"github.com/example/workshop-queue/internal/persistence"
	"github.com/example/workshop-queue/internal/retry"
	"github.com/example/workshop-queue/internal/testfixtures"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, event := range r.events {
		names = append(names, event.Name)
	}
	return names
}

type workOrderStub struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *workOrderStub) CreateFromQueueEntry(_ context.Context, _ QueueEntry, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.calls++
	return fmt.Sprintf("wo-%d", s.calls), nil
}

func fastRetrier() *retry.Executor {
	return retry.NewExecutor(3, time.Millisecond, 2, time.Millisecond, retry.WithSleeper(func(context.Context, time.Duration) error {
		return nil
	}))
}

func sequentialCodes() func() (string, error) {
	var mu sync.Mutex
	counter := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("%04d", counter), nil
	}
}

func newTestCoordinator(store persistence.QueueRepository, workOrders WorkOrderCreator, opts ...CoordinatorOption) (*Coordinator, *testfixtures.Clock, *eventRecorder) {
	clock := testfixtures.NewClock(time.Time{})
	recorder := &eventRecorder{}
	ids := testfixtures.NewIDGenerator("entry")

	base := []CoordinatorOption{WithCodeGenerator(sequentialCodes())}
	base = append(base, opts...)

	coordinator := NewCoordinator(store, nil, fastRetrier(), workOrders, recorder, ids.NextFunc(), clock.NowFunc(), base...)
	return coordinator, clock, recorder
}

func TestCoordinator_AddEntry_AssignsSequentialPositions(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	coordinator, clock, recorder := newTestCoordinator(store, nil)

	for want := 1; want <= 3; want++ {
		entry, err := coordinator.AddEntry(context.Background(), AddEntryParams{
			CustomerID:  fmt.Sprintf("customer-%d", want),
			ServiceType: ServiceTypeAppointment,
		})
		if err != nil {
			t.Fatalf("AddEntry %d failed: %v", want, err)
		}
		if entry.Position != want {
			t.Fatalf("expected position %d, got %d", want, entry.Position)
		}
		if entry.Status != StatusWaiting {
			t.Fatalf("expected waiting status, got %s", entry.Status)
		}
		if entry.EstimatedWaitMinutes != want*15 {
			t.Fatalf("expected estimate %d, got %d", want*15, entry.EstimatedWaitMinutes)
		}
		if !ValidCodeFormat(entry.VerificationCode) {
			t.Fatalf("expected 4-digit code, got %q", entry.VerificationCode)
		}
		if !entry.ExpiresAt.Equal(clock.Now().Add(15 * time.Minute)) {
			t.Fatalf("expected code expiry 15 minutes out, got %s", entry.ExpiresAt)
		}
	}

	status, err := coordinator.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.CurrentCount != 3 || status.LastPosition != 3 {
		t.Fatalf("expected count=3 last_position=3, got count=%d last_position=%d", status.CurrentCount, status.LastPosition)
	}
	if status.AverageWaitMinutes != 45 {
		t.Fatalf("expected average wait 45, got %d", status.AverageWaitMinutes)
	}

	names := recorder.names()
	if len(names) != 3 {
		t.Fatalf("expected 3 events, got %v", names)
	}
	for _, name := range names {
		if name != EventEntryAdded {
			t.Fatalf("expected %s events, got %v", EventEntryAdded, names)
		}
	}
}

func TestCoordinator_AddEntry_ValidatesInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		params AddEntryParams
		field  string
	}{
		{name: "missing customer", params: AddEntryParams{ServiceType: ServiceTypeAppointment}, field: "customer_id"},
		{name: "blank customer", params: AddEntryParams{CustomerID: "   ", ServiceType: ServiceTypeAppointment}, field: "customer_id"},
		{name: "unknown service type", params: AddEntryParams{CustomerID: "customer-1", ServiceType: "walkabout"}, field: "service_type"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			coordinator, _, _ := newTestCoordinator(testfixtures.NewMemoryQueueStore(), nil)
			_, err := coordinator.AddEntry(context.Background(), tc.params)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, vErr.FieldErrors)
			}
		})
	}
}

func TestCoordinator_AddEntry_RejectsClosedQueue(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	coordinator, _, _ := newTestCoordinator(store, nil)

	if _, err := coordinator.SetManualOverride(context.Background(), OverrideClosed); err != nil {
		t.Fatalf("SetManualOverride failed: %v", err)
	}

	_, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-1", ServiceType: ServiceTypeAppointment})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestCoordinator_AddEntry_RegeneratesCollidingCodes(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	store.Seed(testfixtures.NewEntryFixture(testfixtures.WithEntryCode("1234")).Record())

	codes := testfixtures.NewCodeSequence("1234", "5678")
	coordinator, _, _ := newTestCoordinator(store, nil, WithCodeGenerator(codes.NextFunc()))

	entry, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-2", ServiceType: ServiceTypeDirectWorkOrder})
	if err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	if entry.VerificationCode != "5678" {
		t.Fatalf("expected regenerated code 5678, got %q", entry.VerificationCode)
	}
}

func TestCoordinator_AddEntry_FailsAfterCollisionBudget(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	store.Seed(testfixtures.NewEntryFixture(testfixtures.WithEntryCode("1234")).Record())

	codes := testfixtures.NewCodeSequence("1234")
	coordinator, _, _ := newTestCoordinator(store, nil, WithCodeGenerator(codes.NextFunc()))

	_, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-2", ServiceType: ServiceTypeAppointment})
	if !errors.Is(err, ErrAssignmentFailed) {
		t.Fatalf("expected ErrAssignmentFailed, got %v", err)
	}
}

func TestCoordinator_AddEntry_RetriesTransientStoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("recovers within budget", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryQueueStore()
		remaining := 2
		var mu sync.Mutex
		store.FailOp = func(op string) error {
			if op != "CreateEntry" {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if remaining > 0 {
				remaining--
				return persistence.ErrUnavailable
			}
			return nil
		}

		coordinator, _, _ := newTestCoordinator(store, nil)
		if _, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-1", ServiceType: ServiceTypeAppointment}); err != nil {
			t.Fatalf("expected recovery after retries, got %v", err)
		}
	})

	t.Run("reports store unavailable after exhaustion", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryQueueStore()
		store.FailOp = func(op string) error {
			if op == "CreateEntry" {
				return persistence.ErrUnavailable
			}
			return nil
		}

		coordinator, _, _ := newTestCoordinator(store, nil)
		_, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-1", ServiceType: ServiceTypeAppointment})
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestCoordinator_CallNext_ClaimsLowestPosition(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	second := testfixtures.NewEntryFixture(testfixtures.WithEntryPosition(2))
	first := testfixtures.NewEntryFixture(testfixtures.WithEntryPosition(1))
	store.Seed(second.Record(), first.Record())

	workOrders := &workOrderStub{}
	coordinator, clock, recorder := newTestCoordinator(store, workOrders)

	entry, err := coordinator.CallNext(context.Background(), "tech-7")
	if err != nil {
		t.Fatalf("CallNext failed: %v", err)
	}
	if entry.ID != first.ID {
		t.Fatalf("expected lowest position entry %s, got %s", first.ID, entry.ID)
	}
	if entry.Status != StatusCalled {
		t.Fatalf("expected called status, got %s", entry.Status)
	}
	if entry.AssignedTo != "tech-7" {
		t.Fatalf("expected assignment to tech-7, got %q", entry.AssignedTo)
	}
	if entry.WorkOrderID != "wo-1" {
		t.Fatalf("expected linked work order wo-1, got %q", entry.WorkOrderID)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("expected refreshed code expiry, got %s", entry.ExpiresAt)
	}

	names := recorder.names()
	if len(names) != 1 || names[0] != EventCalled {
		t.Fatalf("expected a single %s event, got %v", EventCalled, names)
	}
}

func TestCoordinator_CallNext_NoEntryAvailable(t *testing.T) {
	t.Parallel()

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		coordinator, _, _ := newTestCoordinator(testfixtures.NewMemoryQueueStore(), &workOrderStub{})
		_, err := coordinator.CallNext(context.Background(), "tech-1")
		if !errors.Is(err, ErrNoEntryAvailable) {
			t.Fatalf("expected ErrNoEntryAvailable, got %v", err)
		}
	})

	t.Run("only called entries", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryQueueStore()
		store.Seed(testfixtures.NewEntryFixture(
			testfixtures.WithEntryStatus("called"),
			testfixtures.WithEntryAssignee("tech-2"),
		).Record())

		coordinator, _, _ := newTestCoordinator(store, &workOrderStub{})
		_, err := coordinator.CallNext(context.Background(), "tech-1")
		if !errors.Is(err, ErrNoEntryAvailable) {
			t.Fatalf("expected ErrNoEntryAvailable, got %v", err)
		}
	})
}

func TestCoordinator_CallNext_WorkOrderFailureRevertsClaim(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	fixture := testfixtures.NewEntryFixture()
	store.Seed(fixture.Record())

	workOrders := &workOrderStub{err: errors.New("work order service down")}
	coordinator, _, recorder := newTestCoordinator(store, workOrders)

	_, err := coordinator.CallNext(context.Background(), "tech-1")
	if !errors.Is(err, ErrWorkOrderFailed) {
		t.Fatalf("expected ErrWorkOrderFailed, got %v", err)
	}

	record, ok := store.Snapshot(fixture.ID)
	if !ok {
		t.Fatalf("entry %s disappeared", fixture.ID)
	}
	if record.Status != "waiting" {
		t.Fatalf("expected entry reverted to waiting, got %s", record.Status)
	}
	if record.AssignedTo != nil {
		t.Fatalf("expected assignment cleared, got %q", *record.AssignedTo)
	}
	if record.WorkOrderID != nil {
		t.Fatalf("expected no work order link, got %q", *record.WorkOrderID)
	}
	if names := recorder.names(); len(names) != 0 {
		t.Fatalf("expected no events for failed call, got %v", names)
	}
}

func TestCoordinator_CallNext_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	store.Seed(testfixtures.NewEntryFixture().Record())

	coordinator, _, _ := newTestCoordinator(store, &workOrderStub{})

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(tech int) {
			defer wg.Done()
			_, err := coordinator.CallNext(context.Background(), fmt.Sprintf("tech-%d", tech))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrNoEntryAvailable):
		default:
			t.Fatalf("unexpected CallNext error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestCoordinator_UpdateStatus_EnforcesTransitionGraph(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    string
		to      Status
		params  UpdateStatusParams
		invalid bool
	}{
		{name: "waiting to called", from: "waiting", to: StatusCalled, params: UpdateStatusParams{AssignedTo: "tech-1"}},
		{name: "waiting to cancelled", from: "waiting", to: StatusCancelled},
		{name: "called to in_service", from: "called", to: StatusInService, params: UpdateStatusParams{WorkOrderID: "wo-9"}},
		{name: "called to no_show", from: "called", to: StatusNoShow},
		{name: "called to cancelled", from: "called", to: StatusCancelled},
		{name: "in_service to served", from: "in_service", to: StatusServed},
		{name: "waiting to in_service", from: "waiting", to: StatusInService, invalid: true},
		{name: "waiting to served", from: "waiting", to: StatusServed, invalid: true},
		{name: "called to served", from: "called", to: StatusServed, invalid: true},
		{name: "in_service to cancelled", from: "in_service", to: StatusCancelled, invalid: true},
		{name: "served is terminal", from: "served", to: StatusCalled, invalid: true},
		{name: "cancelled is terminal", from: "cancelled", to: StatusWaiting, invalid: true},
		{name: "no_show is terminal", from: "no_show", to: StatusCalled, invalid: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := testfixtures.NewMemoryQueueStore()
			opts := []testfixtures.EntryOption{testfixtures.WithEntryStatus(tc.from)}
			if tc.from == "called" || tc.from == "in_service" {
				opts = append(opts, testfixtures.WithEntryAssignee("tech-1"))
			}
			if tc.from == "in_service" {
				opts = append(opts, testfixtures.WithEntryWorkOrder("wo-1"))
			}
			fixture := testfixtures.NewEntryFixture(opts...)
			store.Seed(fixture.Record())

			coordinator, _, _ := newTestCoordinator(store, nil)
			params := tc.params
			params.EntryID = fixture.ID
			params.NewStatus = tc.to

			entry, err := coordinator.UpdateStatus(context.Background(), params)
			if tc.invalid {
				var transitionErr *InvalidTransitionError
				if !errors.As(err, &transitionErr) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				record, _ := store.Snapshot(fixture.ID)
				if record.Status != tc.from {
					t.Fatalf("expected status unchanged at %s, got %s", tc.from, record.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus failed: %v", err)
			}
			if entry.Status != tc.to {
				t.Fatalf("expected status %s, got %s", tc.to, entry.Status)
			}
		})
	}
}

func TestCoordinator_UpdateStatus_RequiresTransitionFields(t *testing.T) {
	t.Parallel()

	t.Run("called needs assignment", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryQueueStore()
		fixture := testfixtures.NewEntryFixture()
		store.Seed(fixture.Record())

		coordinator, _, _ := newTestCoordinator(store, nil)
		_, err := coordinator.UpdateStatus(context.Background(), UpdateStatusParams{EntryID: fixture.ID, NewStatus: StatusCalled})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["assigned_to"]; !ok {
			t.Fatalf("expected assigned_to error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("in_service needs work order", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewMemoryQueueStore()
		fixture := testfixtures.NewEntryFixture(
			testfixtures.WithEntryStatus("called"),
			testfixtures.WithEntryAssignee("tech-1"),
		)
		store.Seed(fixture.Record())

		coordinator, _, _ := newTestCoordinator(store, nil)
		_, err := coordinator.UpdateStatus(context.Background(), UpdateStatusParams{EntryID: fixture.ID, NewStatus: StatusInService})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["work_order_id"]; !ok {
			t.Fatalf("expected work_order_id error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("unknown entry", func(t *testing.T) {
		t.Parallel()

		coordinator, _, _ := newTestCoordinator(testfixtures.NewMemoryQueueStore(), nil)
		_, err := coordinator.UpdateStatus(context.Background(), UpdateStatusParams{EntryID: "missing", NewStatus: StatusCancelled})
		if !errors.Is(err, ErrEntryNotFound) {
			t.Fatalf("expected ErrEntryNotFound, got %v", err)
		}
	})
}

func TestCoordinator_ClearQueue_StartsNewEpoch(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	store.Seed(
		testfixtures.NewEntryFixture(testfixtures.WithEntryPosition(1)).Record(),
		testfixtures.NewEntryFixture(testfixtures.WithEntryPosition(2)).Record(),
		testfixtures.NewEntryFixture(
			testfixtures.WithEntryPosition(3),
			testfixtures.WithEntryStatus("called"),
			testfixtures.WithEntryAssignee("tech-1"),
		).Record(),
	)

	coordinator, _, recorder := newTestCoordinator(store, nil)

	cleared, err := coordinator.ClearQueue(context.Background())
	if err != nil {
		t.Fatalf("ClearQueue failed: %v", err)
	}
	if cleared != 3 {
		t.Fatalf("expected 3 cleared entries, got %d", cleared)
	}

	active, err := coordinator.GetActiveEntries(context.Background())
	if err != nil {
		t.Fatalf("GetActiveEntries failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected empty queue after clear, got %d entries", len(active))
	}

	entry, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-9", ServiceType: ServiceTypeEmergency})
	if err != nil {
		t.Fatalf("AddEntry after clear failed: %v", err)
	}
	if entry.Position != 1 {
		t.Fatalf("expected position numbering to restart at 1, got %d", entry.Position)
	}

	names := recorder.names()
	if len(names) == 0 || names[0] != EventStatusChanged {
		t.Fatalf("expected status_changed after clear, got %v", names)
	}
}

func TestCoordinator_ExpirySweep_MovesExpiredCalledToNoShow(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	clockStart := testfixtures.ReferenceTime()

	expiredCalled := testfixtures.NewEntryFixture(
		testfixtures.WithEntryStatus("called"),
		testfixtures.WithEntryAssignee("tech-1"),
		testfixtures.WithEntryExpiry(clockStart.Add(-time.Minute)),
	)
	freshCalled := testfixtures.NewEntryFixture(
		testfixtures.WithEntryStatus("called"),
		testfixtures.WithEntryAssignee("tech-2"),
		testfixtures.WithEntryExpiry(clockStart.Add(10*time.Minute)),
	)
	expiredWaiting := testfixtures.NewEntryFixture(
		testfixtures.WithEntryExpiry(clockStart.Add(-time.Minute)),
	)
	store.Seed(expiredCalled.Record(), freshCalled.Record(), expiredWaiting.Record())

	coordinator, _, recorder := newTestCoordinator(store, nil)

	swept, err := coordinator.ExpirySweep(context.Background())
	if err != nil {
		t.Fatalf("ExpirySweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept entry, got %d", swept)
	}

	record, _ := store.Snapshot(expiredCalled.ID)
	if record.Status != "no_show" {
		t.Fatalf("expected expired called entry moved to no_show, got %s", record.Status)
	}
	record, _ = store.Snapshot(freshCalled.ID)
	if record.Status != "called" {
		t.Fatalf("expected fresh called entry untouched, got %s", record.Status)
	}
	record, _ = store.Snapshot(expiredWaiting.ID)
	if record.Status != "waiting" {
		t.Fatalf("expected waiting entry untouched, got %s", record.Status)
	}

	names := recorder.names()
	if len(names) != 1 || names[0] != EventNoShow {
		t.Fatalf("expected a single no_show event, got %v", names)
	}
}

func TestCoordinator_IsCodeValid(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	reference := testfixtures.ReferenceTime()

	valid := testfixtures.NewEntryFixture(
		testfixtures.WithEntryCode("1111"),
		testfixtures.WithEntryExpiry(reference.Add(10*time.Minute)),
	)
	expired := testfixtures.NewEntryFixture(
		testfixtures.WithEntryCode("2222"),
		testfixtures.WithEntryExpiry(reference.Add(-time.Minute)),
	)
	served := testfixtures.NewEntryFixture(
		testfixtures.WithEntryCode("3333"),
		testfixtures.WithEntryStatus("served"),
		testfixtures.WithEntryExpiry(reference.Add(10*time.Minute)),
	)
	store.Seed(valid.Record(), expired.Record(), served.Record())

	coordinator, _, _ := newTestCoordinator(store, nil)

	cases := []struct {
		name string
		code string
		want bool
	}{
		{name: "active and fresh", code: "1111", want: true},
		{name: "active but expired", code: "2222", want: false},
		{name: "terminal entry never matches", code: "3333", want: false},
		{name: "unknown code", code: "9999", want: false},
		{name: "malformed code", code: "12ab", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := coordinator.IsCodeValid(context.Background(), tc.code)
			if err != nil {
				t.Fatalf("IsCodeValid failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCoordinator_ManualOverrideAndSchedule(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	coordinator, clock, _ := newTestCoordinator(store, nil)

	hours := DefaultWeeklyHours()
	if _, err := coordinator.SetOperatingHours(context.Background(), hours); err != nil {
		t.Fatalf("SetOperatingHours failed: %v", err)
	}
	if _, err := coordinator.SetManualOverride(context.Background(), OverrideNone); err != nil {
		t.Fatalf("clearing override failed: %v", err)
	}

	// Monday 10:00 is inside the default schedule.
	status, err := coordinator.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !status.IsOpen {
		t.Fatalf("expected open inside scheduled hours")
	}

	status, err = coordinator.SetManualOverride(context.Background(), OverrideClosed)
	if err != nil {
		t.Fatalf("SetManualOverride failed: %v", err)
	}
	if status.IsOpen {
		t.Fatalf("expected closed override to win over schedule")
	}

	status, err = coordinator.SetManualOverride(context.Background(), OverrideNone)
	if err != nil {
		t.Fatalf("clearing override failed: %v", err)
	}
	if !status.IsOpen {
		t.Fatalf("expected schedule to decide once override cleared")
	}

	// Move past closing time and let the sweep catch up.
	clock.Set(testfixtures.ReferenceTime().Add(9 * time.Hour))
	changed, err := coordinator.OperatingHoursSweep(context.Background())
	if err != nil {
		t.Fatalf("OperatingHoursSweep failed: %v", err)
	}
	if !changed {
		t.Fatalf("expected sweep to flip the open flag")
	}

	record, err := store.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus on store failed: %v", err)
	}
	if record.IsOpen {
		t.Fatalf("expected persisted open flag to be false after closing time")
	}
}

func TestCoordinator_CacheServesRepeatedReads(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	fixture := testfixtures.NewEntryFixture()
	store.Seed(fixture.Record())

	clock := testfixtures.NewClock(time.Time{})
	layer := cache.NewLayer(testfixtures.NewMemoryCacheStore(), 16, time.Minute, clock.NowFunc(), cache.WithRules(cache.DefaultQueueRules()))
	coordinator := NewCoordinator(store, layer, fastRetrier(), nil, nil, NewEntryID, clock.NowFunc(), WithCodeGenerator(sequentialCodes()))

	if _, err := coordinator.GetEntry(context.Background(), fixture.ID); err != nil {
		t.Fatalf("first GetEntry failed: %v", err)
	}

	// With the snapshot cached, a store outage must not surface on reads.
	store.FailOp = func(op string) error {
		if op == "GetEntry" {
			return persistence.ErrUnavailable
		}
		return nil
	}
	entry, err := coordinator.GetEntry(context.Background(), fixture.ID)
	if err != nil {
		t.Fatalf("cached GetEntry failed: %v", err)
	}
	if entry.ID != fixture.ID {
		t.Fatalf("expected cached entry %s, got %s", fixture.ID, entry.ID)
	}
}

func TestCoordinator_MutationInvalidatesActiveList(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryQueueStore()
	clock := testfixtures.NewClock(time.Time{})
	layer := cache.NewLayer(testfixtures.NewMemoryCacheStore(), 16, time.Minute, clock.NowFunc(), cache.WithRules(cache.DefaultQueueRules()))
	coordinator := NewCoordinator(store, layer, fastRetrier(), nil, nil, NewEntryID, clock.NowFunc(), WithCodeGenerator(sequentialCodes()))

	active, err := coordinator.GetActiveEntries(context.Background())
	if err != nil {
		t.Fatalf("GetActiveEntries failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected empty queue, got %d entries", len(active))
	}

	if _, err := coordinator.AddEntry(context.Background(), AddEntryParams{CustomerID: "customer-1", ServiceType: ServiceTypeAppointment}); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}

	active, err = coordinator.GetActiveEntries(context.Background())
	if err != nil {
		t.Fatalf("GetActiveEntries after add failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected the cached list to be invalidated by the add, got %d entries", len(active))
	}
}
