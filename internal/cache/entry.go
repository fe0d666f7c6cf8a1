// Package cache implements the two-tier read-through/write-through cache that
// shields the queue coordinator from the backing store. The memory tier is a
// bounded map with priority-class eviction; the durable tier survives restarts
// behind persistence.CacheRepository. Both tiers hold derived state only and
// may be dropped at any time without correctness loss.
package cache

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Priority orders entries for eviction; lower priorities are evicted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the storage representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "medium"
	}
}

// ParsePriority maps a storage value back to a Priority, defaulting to medium.
func ParsePriority(value string) Priority {
	switch value {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Entry is one cached value with its bookkeeping metadata.
type Entry struct {
	Key          string
	Value        []byte
	SemanticKey  string
	Context      string
	Tags         []string
	Priority     Priority
	Version      string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int64
	LastAccessed time.Time
}

// Valid reports whether the entry is still live at the given instant.
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// hasAnyTag reports whether the entry carries at least one of the given tags.
func (e Entry) hasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Fingerprint condenses an arbitrary-length cache key into a fixed-width hex
// digest used as the durable tier's primary key.
func Fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
