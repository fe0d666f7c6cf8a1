package testfixtures

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

// MemoryQueueStore is an in-memory persistence.QueueRepository for
// coordinator tests. It enforces the same invariants as the SQLite
// implementation: code uniqueness among active entries, in-transaction
// aggregate maintenance, and the position epoch counter. The FailOp hook
// injects errors per operation name to exercise retry behavior.
type MemoryQueueStore struct {
	mu      sync.Mutex
	entries map[string]persistence.QueueEntry
	status  persistence.QueueStatus

	// FailOp, when set, is consulted with the operation name (e.g. "CreateEntry")
	// before it runs; a non-nil return aborts the operation with that error.
	FailOp func(op string) error
}

// NewMemoryQueueStore returns an empty store with the queue marked open, so
// coordinator tests do not need to configure a schedule first.
func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{
		entries: make(map[string]persistence.QueueEntry),
		status: persistence.QueueStatus{
			IsOpen:         true,
			ManualOverride: "open",
			LastUpdated:    ReferenceTime(),
		},
	}
}

// Seed inserts entries directly, bypassing position assignment, and
// recomputes the aggregate.
func (s *MemoryQueueStore) Seed(records ...persistence.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.entries[record.ID] = record
		if record.Position > s.status.LastPosition {
			s.status.LastPosition = record.Position
		}
	}
	s.refreshLocked(time.Time{})
}

func (s *MemoryQueueStore) fail(op string) error {
	if s.FailOp != nil {
		return s.FailOp(op)
	}
	return nil
}

// GetEntry implements persistence.QueueRepository.
func (s *MemoryQueueStore) GetEntry(_ context.Context, id string) (persistence.QueueEntry, error) {
	if err := s.fail("GetEntry"); err != nil {
		return persistence.QueueEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return persistence.QueueEntry{}, persistence.ErrNotFound
	}
	return entry, nil
}

// GetEntryByCode implements persistence.QueueRepository.
func (s *MemoryQueueStore) GetEntryByCode(_ context.Context, code string) (persistence.QueueEntry, error) {
	if err := s.fail("GetEntryByCode"); err != nil {
		return persistence.QueueEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.VerificationCode == code && activeStatus(entry.Status) {
			return entry, nil
		}
	}
	return persistence.QueueEntry{}, persistence.ErrNotFound
}

// QueryActive implements persistence.QueueRepository.
func (s *MemoryQueueStore) QueryActive(_ context.Context) ([]persistence.QueueEntry, error) {
	if err := s.fail("QueryActive"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []persistence.QueueEntry
	for _, entry := range s.entries {
		if activeStatus(entry.Status) {
			active = append(active, entry)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Position != active[j].Position {
			return active[i].Position < active[j].Position
		}
		if !active[i].JoinedAt.Equal(active[j].JoinedAt) {
			return active[i].JoinedAt.Before(active[j].JoinedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

// CreateEntry implements persistence.QueueRepository.
func (s *MemoryQueueStore) CreateEntry(_ context.Context, build persistence.EntryFactory) (persistence.QueueEntry, error) {
	if err := s.fail("CreateEntry"); err != nil {
		return persistence.QueueEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := build(s.status.LastPosition + 1)
	for _, existing := range s.entries {
		if existing.VerificationCode == entry.VerificationCode && activeStatus(existing.Status) {
			return persistence.QueueEntry{}, persistence.ErrDuplicate
		}
	}
	if _, exists := s.entries[entry.ID]; exists {
		return persistence.QueueEntry{}, persistence.ErrDuplicate
	}

	s.entries[entry.ID] = entry
	s.status.LastPosition = entry.Position
	s.refreshLocked(entry.UpdatedAt)
	return entry, nil
}

// TransactionalUpdate implements persistence.QueueRepository.
func (s *MemoryQueueStore) TransactionalUpdate(_ context.Context, id string, mutate persistence.EntryMutator) (persistence.QueueEntry, error) {
	if err := s.fail("TransactionalUpdate"); err != nil {
		return persistence.QueueEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[id]
	if !ok {
		return persistence.QueueEntry{}, persistence.ErrNotFound
	}

	next, err := mutate(current)
	if err != nil {
		return persistence.QueueEntry{}, err
	}

	s.entries[id] = next
	s.refreshLocked(next.UpdatedAt)
	return next, nil
}

// CancelActive implements persistence.QueueRepository.
func (s *MemoryQueueStore) CancelActive(_ context.Context, status string, at time.Time) (int, error) {
	if err := s.fail("CancelActive"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for id, entry := range s.entries {
		if activeStatus(entry.Status) {
			entry.Status = status
			entry.UpdatedAt = at
			s.entries[id] = entry
			affected++
		}
	}
	s.status.LastPosition = 0
	s.refreshLocked(at)
	return affected, nil
}

// GetStatus implements persistence.QueueRepository.
func (s *MemoryQueueStore) GetStatus(_ context.Context) (persistence.QueueStatus, error) {
	if err := s.fail("GetStatus"); err != nil {
		return persistence.QueueStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// PutStatus implements persistence.QueueRepository.
func (s *MemoryQueueStore) PutStatus(_ context.Context, status persistence.QueueStatus) error {
	if err := s.fail("PutStatus"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.IsOpen = status.IsOpen
	s.status.ManualOverride = status.ManualOverride
	s.status.OperatingHoursJSON = status.OperatingHoursJSON
	s.status.LastUpdated = status.LastUpdated
	return nil
}

// Snapshot returns a copy of the stored entry, for assertions.
func (s *MemoryQueueStore) Snapshot(id string) (persistence.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

func (s *MemoryQueueStore) refreshLocked(at time.Time) {
	count := 0
	for _, entry := range s.entries {
		if activeStatus(entry.Status) {
			count++
		}
	}
	s.status.CurrentCount = count
	if !at.IsZero() {
		s.status.LastUpdated = at
	}
}

func activeStatus(status string) bool {
	return status == "waiting" || status == "called"
}

// MemoryCacheStore is an in-memory persistence.CacheRepository for cache
// layer tests.
type MemoryCacheStore struct {
	mu      sync.Mutex
	records map[string]persistence.CacheRecord

	// FailOp mirrors MemoryQueueStore.FailOp.
	FailOp func(op string) error
}

// NewMemoryCacheStore returns an empty durable-tier fake.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{records: make(map[string]persistence.CacheRecord)}
}

func (s *MemoryCacheStore) fail(op string) error {
	if s.FailOp != nil {
		return s.FailOp(op)
	}
	return nil
}

// GetRecord implements persistence.CacheRepository.
func (s *MemoryCacheStore) GetRecord(_ context.Context, keyHash string) (persistence.CacheRecord, error) {
	if err := s.fail("GetRecord"); err != nil {
		return persistence.CacheRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[keyHash]
	if !ok {
		return persistence.CacheRecord{}, persistence.ErrNotFound
	}
	return record, nil
}

// PutRecord implements persistence.CacheRepository.
func (s *MemoryCacheStore) PutRecord(_ context.Context, record persistence.CacheRecord) error {
	if err := s.fail("PutRecord"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.KeyHash] = record
	return nil
}

// DeleteRecord implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeleteRecord(_ context.Context, keyHash string) error {
	if err := s.fail("DeleteRecord"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, keyHash)
	return nil
}

// DeleteExpired implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeleteExpired(_ context.Context, reference time.Time) (int, error) {
	if err := s.fail("DeleteExpired"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, record := range s.records {
		if !reference.Before(record.ExpiresAt) {
			delete(s.records, hash)
			removed++
		}
	}
	return removed, nil
}

// DeleteContext implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeleteContext(_ context.Context, cacheContext string) error {
	return s.deleteWhere("DeleteContext", func(record persistence.CacheRecord) bool {
		return record.Context != nil && *record.Context == cacheContext
	})
}

// DeleteByTags implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeleteByTags(_ context.Context, tags []string) error {
	return s.deleteWhere("DeleteByTags", func(record persistence.CacheRecord) bool {
		for _, want := range tags {
			for _, have := range record.Tags {
				if have == want {
					return true
				}
			}
		}
		return false
	})
}

// DeletePrefix implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeletePrefix(_ context.Context, prefix string) error {
	return s.deleteWhere("DeletePrefix", func(record persistence.CacheRecord) bool {
		return strings.HasPrefix(record.Key, prefix)
	})
}

// DeleteVersion implements persistence.CacheRepository.
func (s *MemoryCacheStore) DeleteVersion(_ context.Context, version string) error {
	return s.deleteWhere("DeleteVersion", func(record persistence.CacheRecord) bool {
		return record.Version != nil && *record.Version == version
	})
}

// Len reports how many records the fake holds.
func (s *MemoryCacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryCacheStore) deleteWhere(op string, match func(persistence.CacheRecord) bool) error {
	if err := s.fail(op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, record := range s.records {
		if match(record) {
			delete(s.records, hash)
		}
	}
	return nil
}
