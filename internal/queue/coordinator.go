package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/workshop-queue/internal/cache"
	"github.com/example/workshop-queue/internal/persistence"
	"github.com/example/workshop-queue/internal/retry"
)

// Cache keys owned by the coordinator. The invalidation rule table references
// the same names.
const (
	statusCacheKey   = "queue/status"
	activeCacheKey   = "queue/active"
	entryCachePrefix = "queue/entry/"
)

// WorkOrderCreator opens an external work order for a claimed entry and
// returns its identifier.
type WorkOrderCreator interface {
	CreateFromQueueEntry(ctx context.Context, entry QueueEntry, technicianID string) (string, error)
}

// Coordinator is the queue state machine. All writes go through the
// repository inside transactions and through the retry executor, so transient
// store failures are absorbed uniformly; reads prefer the cache layer.
type Coordinator struct {
	store                 persistence.QueueRepository
	cache                 *cache.Layer
	retrier               *retry.Executor
	workOrders            WorkOrderCreator
	notifier              Notifier
	idGenerator           func() string
	codeGenerator         func() (string, error)
	now                   func() time.Time
	logger                *slog.Logger
	averageServiceMinutes int
	codeTTL               time.Duration
	codeAttempts          int
	claimBudget           int
	claimObserver         func(attempts int)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's base logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithCodeGenerator overrides verification-code generation, letting tests
// force collisions.
func WithCodeGenerator(generate func() (string, error)) CoordinatorOption {
	return func(c *Coordinator) {
		if generate != nil {
			c.codeGenerator = generate
		}
	}
}

// WithAverageServiceMinutes sets the per-customer service estimate used for
// wait-time math.
func WithAverageServiceMinutes(minutes int) CoordinatorOption {
	return func(c *Coordinator) {
		if minutes > 0 {
			c.averageServiceMinutes = minutes
		}
	}
}

// WithCodeTTL sets the verification-code validity window.
func WithCodeTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.codeTTL = ttl
		}
	}
}

// WithCodeAttempts bounds how many code collisions AddEntry regenerates
// through before reporting assignment failure.
func WithCodeAttempts(attempts int) CoordinatorOption {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.codeAttempts = attempts
		}
	}
}

// WithClaimBudget bounds how many lost claim races CallNext absorbs before
// reporting no entry available.
func WithClaimBudget(budget int) CoordinatorOption {
	return func(c *Coordinator) {
		if budget > 0 {
			c.claimBudget = budget
		}
	}
}

// WithClaimObserver registers a callback invoked with the number of claim
// attempts each successful CallNext needed.
func WithClaimObserver(observe func(attempts int)) CoordinatorOption {
	return func(c *Coordinator) { c.claimObserver = observe }
}

// NewCoordinator wires dependencies for queue operations. The work-order
// creator and notifier may be nil; a nil creator makes CallNext link no work
// order, a nil notifier drops events.
func NewCoordinator(store persistence.QueueRepository, cacheLayer *cache.Layer, retrier *retry.Executor, workOrders WorkOrderCreator, notifier Notifier, idGenerator func() string, now func() time.Time, opts ...CoordinatorOption) *Coordinator {
	if idGenerator == nil {
		idGenerator = NewEntryID
	}
	if now == nil {
		now = time.Now
	}
	if retrier == nil {
		retrier = retry.NewExecutor(0, 0, 0, 0)
	}
	coordinator := &Coordinator{
		store:                 store,
		cache:                 cacheLayer,
		retrier:               retrier,
		workOrders:            workOrders,
		notifier:              notifier,
		idGenerator:           idGenerator,
		codeGenerator:         GenerateCode,
		now:                   now,
		averageServiceMinutes: 15,
		codeTTL:               15 * time.Minute,
		codeAttempts:          5,
		claimBudget:           3,
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator
}

// AddEntry joins a customer to the queue: assigns the next position, issues a
// verification code unique among active entries, and persists the entry and
// the refreshed aggregate in one transaction. Collisions on the code are
// regenerated in-process a bounded number of times before AssignmentFailed.
func (c *Coordinator) AddEntry(ctx context.Context, params AddEntryParams) (QueueEntry, error) {
	if c == nil {
		return QueueEntry{}, fmt.Errorf("Coordinator is nil")
	}
	logger := serviceLogger(ctx, c.logger, "queue", "add_entry", "customer_id", params.CustomerID)

	vErr := &ValidationError{}
	if strings.TrimSpace(params.CustomerID) == "" {
		vErr.add("customer_id", "customer_id is required")
	}
	if !ValidServiceType(params.ServiceType) {
		vErr.add("service_type", "service_type must be appointment, direct_work_order, or emergency")
	}
	if vErr.HasErrors() {
		return QueueEntry{}, vErr
	}

	status, err := c.GetStatus(ctx)
	if err != nil {
		return QueueEntry{}, err
	}
	if !status.IsOpen {
		return QueueEntry{}, ErrQueueClosed
	}

	now := c.now()
	var created persistence.QueueEntry
	for attempt := 0; attempt < c.codeAttempts; attempt++ {
		code, err := c.codeGenerator()
		if err != nil {
			return QueueEntry{}, err
		}

		err = c.retrier.Do(ctx, func(ctx context.Context) error {
			var createErr error
			created, createErr = c.store.CreateEntry(ctx, func(position int) persistence.QueueEntry {
				return entryToRecord(QueueEntry{
					ID:                   c.idGenerator(),
					CustomerID:           strings.TrimSpace(params.CustomerID),
					ServiceType:          params.ServiceType,
					Status:               StatusWaiting,
					Position:             position,
					JoinedAt:             now,
					EstimatedWaitMinutes: position * c.averageServiceMinutes,
					VerificationCode:     code,
					ExpiresAt:            now.Add(c.codeTTL),
					Notes:                strings.TrimSpace(params.Notes),
					CreatedAt:            now,
					UpdatedAt:            now,
				})
			})
			return createErr
		}, transientStoreError)
		if err == nil {
			entry := entryFromRecord(created)
			logger.InfoContext(ctx, "entry added", "entry_id", entry.ID, "position", entry.Position)
			c.emitEntryEvent(ctx, EventEntryAdded, entry, false)
			return entry, nil
		}
		if errors.Is(err, persistence.ErrDuplicate) {
			logger.DebugContext(ctx, "verification code collision, regenerating", "attempt", attempt+1)
			continue
		}
		return QueueEntry{}, mapStoreError(err)
	}

	return QueueEntry{}, ErrAssignmentFailed
}

// CallNext claims the waiting entry with the lowest position for the given
// technician, opens a work order for it, and links the work order to the
// entry. A claim lost to a concurrent caller is re-selected within a small
// budget; work-order failure reverts the claim so the entry stays waiting.
func (c *Coordinator) CallNext(ctx context.Context, technicianID string) (QueueEntry, error) {
	if c == nil {
		return QueueEntry{}, fmt.Errorf("Coordinator is nil")
	}
	logger := serviceLogger(ctx, c.logger, "queue", "call_next", "technician_id", technicianID)

	if strings.TrimSpace(technicianID) == "" {
		vErr := &ValidationError{}
		vErr.add("technician_id", "technician_id is required")
		return QueueEntry{}, vErr
	}

	for claim := 0; claim < c.claimBudget; claim++ {
		candidate, ok, err := c.nextWaiting(ctx)
		if err != nil {
			return QueueEntry{}, err
		}
		if !ok {
			return QueueEntry{}, ErrNoEntryAvailable
		}

		claimed, err := c.claimEntry(ctx, candidate.ID, technicianID)
		if err != nil {
			if errors.Is(err, persistence.ErrConflict) || errors.Is(err, persistence.ErrNotFound) {
				logger.DebugContext(ctx, "claim lost, reselecting", "entry_id", candidate.ID, "attempt", claim+1)
				continue
			}
			return QueueEntry{}, mapStoreError(err)
		}

		linked, err := c.linkWorkOrder(ctx, claimed, technicianID)
		if err != nil {
			c.revertClaim(ctx, claimed.ID, technicianID)
			logger.WarnContext(ctx, "work order creation failed, claim reverted", "entry_id", claimed.ID, "error", err)
			return QueueEntry{}, fmt.Errorf("%w: %v", ErrWorkOrderFailed, err)
		}

		logger.InfoContext(ctx, "entry called", "entry_id", linked.ID, "position", linked.Position)
		if c.claimObserver != nil {
			c.claimObserver(claim + 1)
		}
		c.emitEntryEvent(ctx, EventCalled, linked, false)
		return linked, nil
	}

	return QueueEntry{}, ErrNoEntryAvailable
}

// nextWaiting selects the lowest-position waiting entry from the store. The
// repository orders active entries by position then joined_at, which covers
// the defensive tie-break for duplicated positions.
func (c *Coordinator) nextWaiting(ctx context.Context) (QueueEntry, bool, error) {
	var records []persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var queryErr error
		records, queryErr = c.store.QueryActive(ctx)
		return queryErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, false, mapStoreError(err)
	}

	for _, record := range records {
		if Status(record.Status) == StatusWaiting {
			return entryFromRecord(record), true, nil
		}
	}
	return QueueEntry{}, false, nil
}

// claimEntry transitions waiting → called with the claim precondition checked
// inside the transaction, so concurrent callers cannot both win. The code
// validity window restarts here: the customer is only asked to present the
// code once called.
func (c *Coordinator) claimEntry(ctx context.Context, entryID, technicianID string) (QueueEntry, error) {
	now := c.now()
	var updated persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var txErr error
		updated, txErr = c.store.TransactionalUpdate(ctx, entryID, func(record persistence.QueueEntry) (persistence.QueueEntry, error) {
			if Status(record.Status) != StatusWaiting {
				return persistence.QueueEntry{}, persistence.ErrConflict
			}
			record.Status = string(StatusCalled)
			assignedTo := technicianID
			record.AssignedTo = &assignedTo
			record.ExpiresAt = now.Add(c.codeTTL)
			record.UpdatedAt = now
			return record, nil
		})
		return txErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, err
	}
	return entryFromRecord(updated), nil
}

// linkWorkOrder creates the external work order and stores its id on the
// already-claimed entry. A nil creator skips the link.
func (c *Coordinator) linkWorkOrder(ctx context.Context, claimed QueueEntry, technicianID string) (QueueEntry, error) {
	if c.workOrders == nil {
		return claimed, nil
	}

	workOrderID, err := c.workOrders.CreateFromQueueEntry(ctx, claimed, technicianID)
	if err != nil {
		return QueueEntry{}, err
	}

	now := c.now()
	var updated persistence.QueueEntry
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		var txErr error
		updated, txErr = c.store.TransactionalUpdate(ctx, claimed.ID, func(record persistence.QueueEntry) (persistence.QueueEntry, error) {
			if Status(record.Status) != StatusCalled {
				return persistence.QueueEntry{}, persistence.ErrConflict
			}
			record.WorkOrderID = &workOrderID
			record.UpdatedAt = now
			return record, nil
		})
		return txErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, err
	}
	return entryFromRecord(updated), nil
}

// revertClaim puts a claimed entry back to waiting after a failed work-order
// creation. The revert only applies while the entry is still called and
// assigned to the same technician; anything else means another actor moved it
// on and the revert must not fire.
func (c *Coordinator) revertClaim(ctx context.Context, entryID, technicianID string) {
	now := c.now()
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		_, txErr := c.store.TransactionalUpdate(ctx, entryID, func(record persistence.QueueEntry) (persistence.QueueEntry, error) {
			if Status(record.Status) != StatusCalled || record.AssignedTo == nil || *record.AssignedTo != technicianID {
				return persistence.QueueEntry{}, persistence.ErrConflict
			}
			record.Status = string(StatusWaiting)
			record.AssignedTo = nil
			record.UpdatedAt = now
			return record, nil
		})
		return txErr
	}, transientStoreError)
	if err != nil && !errors.Is(err, persistence.ErrConflict) {
		serviceLogger(ctx, c.logger, "queue", "call_next").ErrorContext(ctx, "claim revert failed", "entry_id", entryID, "error", err)
	}
}

// UpdateStatus applies a validated state transition. Transitions outside the
// state graph are rejected before anything is persisted, and the aggregate is
// recomputed in the same transaction as the entry write.
func (c *Coordinator) UpdateStatus(ctx context.Context, params UpdateStatusParams) (QueueEntry, error) {
	if c == nil {
		return QueueEntry{}, fmt.Errorf("Coordinator is nil")
	}
	logger := serviceLogger(ctx, c.logger, "queue", "update_status", "entry_id", params.EntryID)

	vErr := &ValidationError{}
	if strings.TrimSpace(params.EntryID) == "" {
		vErr.add("entry_id", "entry_id is required")
	}
	if !ValidStatus(params.NewStatus) {
		vErr.add("status", "unknown status")
	}
	if vErr.HasErrors() {
		return QueueEntry{}, vErr
	}

	now := c.now()
	var updated persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var txErr error
		updated, txErr = c.store.TransactionalUpdate(ctx, params.EntryID, func(record persistence.QueueEntry) (persistence.QueueEntry, error) {
			from := Status(record.Status)
			if !CanTransition(from, params.NewStatus) {
				return persistence.QueueEntry{}, &InvalidTransitionError{From: from, To: params.NewStatus}
			}

			record.Status = string(params.NewStatus)
			if params.AssignedTo != "" {
				assignedTo := params.AssignedTo
				record.AssignedTo = &assignedTo
			}
			if params.WorkOrderID != "" {
				workOrderID := params.WorkOrderID
				record.WorkOrderID = &workOrderID
			}
			record.UpdatedAt = now

			if Status(record.Status) == StatusCalled && record.AssignedTo == nil {
				inner := &ValidationError{}
				inner.add("assigned_to", "assigned_to is required for called")
				return persistence.QueueEntry{}, inner
			}
			if Status(record.Status) == StatusInService && record.WorkOrderID == nil {
				inner := &ValidationError{}
				inner.add("work_order_id", "work_order_id is required for in_service")
				return persistence.QueueEntry{}, inner
			}
			return record, nil
		})
		return txErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, mapStoreError(err)
	}

	entry := entryFromRecord(updated)
	logger.InfoContext(ctx, "status updated", "status", entry.Status)
	c.emitEntryEvent(ctx, eventForStatus(entry.Status), entry, false)
	return entry, nil
}

// ClearQueue force-cancels every active entry and resets position assignment,
// starting a new epoch. Used for the end-of-day reset.
func (c *Coordinator) ClearQueue(ctx context.Context) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("Coordinator is nil")
	}
	logger := serviceLogger(ctx, c.logger, "queue", "clear_queue")

	now := c.now()
	var cleared int
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var clearErr error
		cleared, clearErr = c.store.CancelActive(ctx, string(StatusCancelled), now)
		return clearErr
	}, transientStoreError)
	if err != nil {
		return 0, mapStoreError(err)
	}

	logger.InfoContext(ctx, "queue cleared", "entries", cleared)
	c.emitStatusEvent(ctx)
	return cleared, nil
}

// ExpirySweep moves every called entry whose code validity window has passed
// to no_show. Waiting entries are untouched: their code has not been asked
// for yet. Returns how many entries were expired.
func (c *Coordinator) ExpirySweep(ctx context.Context) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("Coordinator is nil")
	}
	logger := serviceLogger(ctx, c.logger, "queue", "expiry_sweep")

	var records []persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var queryErr error
		records, queryErr = c.store.QueryActive(ctx)
		return queryErr
	}, transientStoreError)
	if err != nil {
		return 0, mapStoreError(err)
	}

	now := c.now()
	expired := 0
	for _, record := range records {
		entry := entryFromRecord(record)
		if entry.Status != StatusCalled || !entry.CodeExpired(now) {
			continue
		}

		var updated persistence.QueueEntry
		err := c.retrier.Do(ctx, func(ctx context.Context) error {
			var txErr error
			updated, txErr = c.store.TransactionalUpdate(ctx, entry.ID, func(current persistence.QueueEntry) (persistence.QueueEntry, error) {
				if Status(current.Status) != StatusCalled || now.Before(current.ExpiresAt) {
					return persistence.QueueEntry{}, persistence.ErrConflict
				}
				current.Status = string(StatusNoShow)
				current.UpdatedAt = now
				return current, nil
			})
			return txErr
		}, transientStoreError)
		if err != nil {
			if errors.Is(err, persistence.ErrConflict) || errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return expired, mapStoreError(err)
		}

		expired++
		c.emitEntryEvent(ctx, EventNoShow, entryFromRecord(updated), false)
	}

	if expired > 0 {
		logger.InfoContext(ctx, "expired called entries swept", "entries", expired)
	}
	return expired, nil
}

// OperatingHoursSweep recomputes the open flag from the weekly schedule and
// persists it when it changed, without touching entries. Returns whether a
// change was persisted.
func (c *Coordinator) OperatingHoursSweep(ctx context.Context) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("Coordinator is nil")
	}

	record, err := c.statusRecord(ctx)
	if err != nil {
		return false, err
	}

	hours, err := decodeWeeklyHours(record.OperatingHoursJSON)
	if err != nil {
		return false, err
	}

	open := computeOpen(hours, Override(record.ManualOverride), c.now())
	if open == record.IsOpen {
		return false, nil
	}

	record.IsOpen = open
	record.LastUpdated = c.now()
	if err := c.putStatusRecord(ctx, record); err != nil {
		return false, err
	}

	serviceLogger(ctx, c.logger, "queue", "operating_hours_sweep").InfoContext(ctx, "open flag changed", "is_open", open)
	c.emitStatusEvent(ctx)
	return true, nil
}

// SetManualOverride pins the queue open or closed regardless of the schedule,
// or clears the pin with OverrideNone.
func (c *Coordinator) SetManualOverride(ctx context.Context, override Override) (QueueStatus, error) {
	if c == nil {
		return QueueStatus{}, fmt.Errorf("Coordinator is nil")
	}
	if !ValidOverride(override) {
		vErr := &ValidationError{}
		vErr.add("override", "override must be open, closed, or empty")
		return QueueStatus{}, vErr
	}

	record, err := c.statusRecord(ctx)
	if err != nil {
		return QueueStatus{}, err
	}

	hours, err := decodeWeeklyHours(record.OperatingHoursJSON)
	if err != nil {
		return QueueStatus{}, err
	}

	record.ManualOverride = string(override)
	record.IsOpen = computeOpen(hours, override, c.now())
	record.LastUpdated = c.now()
	if err := c.putStatusRecord(ctx, record); err != nil {
		return QueueStatus{}, err
	}

	serviceLogger(ctx, c.logger, "queue", "set_manual_override").InfoContext(ctx, "override set", "override", string(override), "is_open", record.IsOpen)
	c.emitStatusEvent(ctx)
	return c.statusFromRecord(record, hours), nil
}

// SetOperatingHours replaces the weekly schedule and recomputes the open flag.
func (c *Coordinator) SetOperatingHours(ctx context.Context, hours WeeklyHours) (QueueStatus, error) {
	if c == nil {
		return QueueStatus{}, fmt.Errorf("Coordinator is nil")
	}
	if err := hours.Validate(); err != nil {
		vErr := &ValidationError{}
		vErr.add("operating_hours", err.Error())
		return QueueStatus{}, vErr
	}

	record, err := c.statusRecord(ctx)
	if err != nil {
		return QueueStatus{}, err
	}

	encoded, err := encodeWeeklyHours(hours)
	if err != nil {
		return QueueStatus{}, err
	}

	record.OperatingHoursJSON = encoded
	record.IsOpen = computeOpen(hours, Override(record.ManualOverride), c.now())
	record.LastUpdated = c.now()
	if err := c.putStatusRecord(ctx, record); err != nil {
		return QueueStatus{}, err
	}

	serviceLogger(ctx, c.logger, "queue", "set_operating_hours").InfoContext(ctx, "schedule replaced", "is_open", record.IsOpen)
	c.emitStatusEvent(ctx)
	return c.statusFromRecord(record, hours), nil
}

// GetActiveEntries returns the waiting and called entries ordered by position.
func (c *Coordinator) GetActiveEntries(ctx context.Context) ([]QueueEntry, error) {
	if c == nil {
		return nil, fmt.Errorf("Coordinator is nil")
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, activeCacheKey); ok {
			var entries []QueueEntry
			if err := json.Unmarshal(cached, &entries); err == nil {
				return entries, nil
			}
		}
	}

	var records []persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var queryErr error
		records, queryErr = c.store.QueryActive(ctx)
		return queryErr
	}, transientStoreError)
	if err != nil {
		return nil, mapStoreError(err)
	}

	entries := make([]QueueEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, entryFromRecord(record))
	}

	c.cacheJSON(ctx, activeCacheKey, entries, cache.PriorityHigh)
	return entries, nil
}

// GetStatus returns the aggregate with the open flag evaluated live against
// the schedule and the average wait recomputed from the active count.
func (c *Coordinator) GetStatus(ctx context.Context) (QueueStatus, error) {
	if c == nil {
		return QueueStatus{}, fmt.Errorf("Coordinator is nil")
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, statusCacheKey); ok {
			var status QueueStatus
			if err := json.Unmarshal(cached, &status); err == nil {
				return status, nil
			}
		}
	}

	record, err := c.statusRecord(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	hours, err := decodeWeeklyHours(record.OperatingHoursJSON)
	if err != nil {
		return QueueStatus{}, err
	}

	status := c.statusFromRecord(record, hours)
	c.cacheJSON(ctx, statusCacheKey, status, cache.PriorityHigh)
	return status, nil
}

// GetEntry returns one entry by id, cache first.
func (c *Coordinator) GetEntry(ctx context.Context, entryID string) (QueueEntry, error) {
	if c == nil {
		return QueueEntry{}, fmt.Errorf("Coordinator is nil")
	}

	key := entryCachePrefix + entryID
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			var entry QueueEntry
			if err := json.Unmarshal(cached, &entry); err == nil {
				return entry, nil
			}
		}
	}

	var record persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var getErr error
		record, getErr = c.store.GetEntry(ctx, entryID)
		return getErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, mapStoreError(err)
	}

	entry := entryFromRecord(record)
	c.cacheJSON(ctx, key, entry, cache.PriorityMedium)
	return entry, nil
}

// GetEntryByCode returns the active entry holding the verification code.
// Terminal entries never match, so a reused code cannot resolve to an old
// visit.
func (c *Coordinator) GetEntryByCode(ctx context.Context, code string) (QueueEntry, error) {
	if c == nil {
		return QueueEntry{}, fmt.Errorf("Coordinator is nil")
	}
	if !ValidCodeFormat(code) {
		return QueueEntry{}, ErrEntryNotFound
	}

	var record persistence.QueueEntry
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var getErr error
		record, getErr = c.store.GetEntryByCode(ctx, code)
		return getErr
	}, transientStoreError)
	if err != nil {
		return QueueEntry{}, mapStoreError(err)
	}
	return entryFromRecord(record), nil
}

// IsCodeValid reports whether the code belongs to an active entry whose
// validity window has not passed. Lookup failures other than absence
// propagate.
func (c *Coordinator) IsCodeValid(ctx context.Context, code string) (bool, error) {
	entry, err := c.GetEntryByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, nil
		}
		return false, err
	}
	return entry.Status.Active() && !entry.CodeExpired(c.now()), nil
}

// statusRecord reads the singleton status row through the retry executor.
func (c *Coordinator) statusRecord(ctx context.Context) (persistence.QueueStatus, error) {
	var record persistence.QueueStatus
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var getErr error
		record, getErr = c.store.GetStatus(ctx)
		return getErr
	}, transientStoreError)
	if err != nil {
		return persistence.QueueStatus{}, mapStoreError(err)
	}
	return record, nil
}

func (c *Coordinator) putStatusRecord(ctx context.Context, record persistence.QueueStatus) error {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.store.PutStatus(ctx, record)
	}, transientStoreError)
	if err != nil {
		return mapStoreError(err)
	}
	return nil
}

func (c *Coordinator) statusFromRecord(record persistence.QueueStatus, hours WeeklyHours) QueueStatus {
	return QueueStatus{
		IsOpen:             computeOpen(hours, Override(record.ManualOverride), c.now()),
		CurrentCount:       record.CurrentCount,
		AverageWaitMinutes: record.CurrentCount * c.averageServiceMinutes,
		LastPosition:       record.LastPosition,
		OperatingHours:     hours,
		ManualOverride:     Override(record.ManualOverride),
		LastUpdated:        record.LastUpdated,
	}
}

// emitEntryEvent invalidates the cache for the event and delivers it with a
// fresh status snapshot. Invalidation happens before notification so
// subscribers re-reading through the coordinator see post-mutation state.
func (c *Coordinator) emitEntryEvent(ctx context.Context, name string, entry QueueEntry, timerStarted bool) {
	event := Event{
		Name:         name,
		Entry:        &entry,
		TimerStarted: timerStarted,
		OccurredAt:   c.now(),
	}

	if c.cache != nil {
		c.cache.HandleEvent(ctx, name)
	}
	if record, err := c.statusRecord(ctx); err == nil {
		if hours, err := decodeWeeklyHours(record.OperatingHoursJSON); err == nil {
			status := c.statusFromRecord(record, hours)
			event.Status = &status
			c.cacheJSON(ctx, statusCacheKey, status, cache.PriorityHigh)
		}
	}
	c.cacheJSON(ctx, entryCachePrefix+entry.ID, entry, cache.PriorityMedium)

	if c.notifier != nil {
		c.notifier.Notify(ctx, event)
	}
}

// emitStatusEvent invalidates the queue context and delivers a status_changed
// event with the refreshed aggregate.
func (c *Coordinator) emitStatusEvent(ctx context.Context) {
	if c.cache != nil {
		c.cache.HandleEvent(ctx, EventStatusChanged)
	}

	event := Event{Name: EventStatusChanged, OccurredAt: c.now()}
	if record, err := c.statusRecord(ctx); err == nil {
		if hours, err := decodeWeeklyHours(record.OperatingHoursJSON); err == nil {
			status := c.statusFromRecord(record, hours)
			event.Status = &status
			c.cacheJSON(ctx, statusCacheKey, status, cache.PriorityHigh)
		}
	}

	if c.notifier != nil {
		c.notifier.Notify(ctx, event)
	}
}

// cacheJSON stores a snapshot in the queue context. Serialization failures
// only cost a cache miss and are ignored.
func (c *Coordinator) cacheJSON(ctx context.Context, key string, value any, priority cache.Priority) {
	if c.cache == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, encoded, 0, cache.InContext("queue"), cache.WithPriority(priority), cache.WithTags("queue"))
}

// computeOpen derives the open flag: a manual override wins, otherwise the
// weekly schedule decides.
func computeOpen(hours WeeklyHours, override Override, now time.Time) bool {
	switch override {
	case OverrideOpen:
		return true
	case OverrideClosed:
		return false
	default:
		return hours.OpenAt(now)
	}
}

// transientStoreError is the retry predicate for store operations. Only
// availability failures are retried; domain errors and conflicts propagate
// immediately so callers can handle them.
func transientStoreError(err error) bool {
	return errors.Is(err, persistence.ErrUnavailable)
}

// mapStoreError converts persistence sentinels to the queue taxonomy.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var exhausted *retry.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if errors.Is(err, persistence.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrEntryNotFound
	}
	return err
}
