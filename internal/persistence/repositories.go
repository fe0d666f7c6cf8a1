package persistence

import (
	"context"
	"time"
)

// EntryMutator transforms an entry inside a transactional update. Returning an
// error aborts the transaction; return ErrConflict when a precondition no
// longer holds so callers can distinguish a lost race from a hard failure.
type EntryMutator func(entry QueueEntry) (QueueEntry, error)

// EntryFactory builds the entry to insert once the repository has assigned the
// next position of the current epoch. Position-derived fields (the wait
// estimate) stay with the caller this way while assignment stays atomic.
type EntryFactory func(position int) QueueEntry

// QueueRepository exposes transactional CRUD over queue entries and the
// singleton status record. Implementations must keep QueueStatus.CurrentCount
// consistent with entry mutations within the same transaction, so readers can
// never observe an entry without a matching count.
type QueueRepository interface {
	GetEntry(ctx context.Context, id string) (QueueEntry, error)
	GetEntryByCode(ctx context.Context, code string) (QueueEntry, error)
	// QueryActive returns entries with status waiting or called, ordered by
	// position ascending then joined_at ascending.
	QueryActive(ctx context.Context) ([]QueueEntry, error)
	// CreateEntry assigns the next position, inserts the entry built by the
	// factory, and advances the status record's LastPosition and CurrentCount
	// in one transaction.
	CreateEntry(ctx context.Context, build EntryFactory) (QueueEntry, error)
	// TransactionalUpdate applies mutate to the stored entry inside a
	// transaction and recomputes the status aggregate before committing.
	TransactionalUpdate(ctx context.Context, id string, mutate EntryMutator) (QueueEntry, error)
	// CancelActive force-transitions every waiting/called entry to the given
	// terminal status, resets LastPosition, and returns the number of entries
	// affected. Used for the end-of-day reset.
	CancelActive(ctx context.Context, status string, at time.Time) (int, error)
	// GetStatus returns the singleton status record, creating it lazily with
	// defaults on first access.
	GetStatus(ctx context.Context) (QueueStatus, error)
	// PutStatus persists schedule-level fields (IsOpen, ManualOverride,
	// OperatingHoursJSON). Counters are owned by entry mutations.
	PutStatus(ctx context.Context, status QueueStatus) error
}

// CacheRepository stores durable cache records keyed by fingerprint.
type CacheRepository interface {
	GetRecord(ctx context.Context, keyHash string) (CacheRecord, error)
	PutRecord(ctx context.Context, record CacheRecord) error
	DeleteRecord(ctx context.Context, keyHash string) error
	DeleteExpired(ctx context.Context, reference time.Time) (int, error)
	DeleteContext(ctx context.Context, cacheContext string) error
	DeleteByTags(ctx context.Context, tags []string) error
	DeletePrefix(ctx context.Context, prefix string) error
	DeleteVersion(ctx context.Context, version string) error
}
