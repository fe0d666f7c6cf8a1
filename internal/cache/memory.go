package cache

import (
	"strings"
	"sync"
	"time"
)

// memoryTier is the bounded in-process tier. All map mutations happen under
// one mutex; eviction runs while holding it so concurrent inserts cannot lose
// updates.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Entry
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity <= 0 {
		capacity = 256
	}
	return &memoryTier{
		capacity: capacity,
		entries:  make(map[string]*Entry),
	}
}

// get returns a copy of the entry and bumps its access bookkeeping. Expired
// entries are removed and reported as misses.
func (m *memoryTier) get(key string, now time.Time) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !entry.Valid(now) {
		delete(m.entries, key)
		return Entry{}, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	return cloneEntry(*entry), true
}

// set inserts or replaces an entry, evicting first when at capacity. It
// reports whether an eviction took place.
func (m *memoryTier) set(entry Entry, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := false
	if _, exists := m.entries[entry.Key]; !exists && len(m.entries) >= m.capacity {
		evicted = m.evictLocked(now)
	}

	stored := cloneEntry(entry)
	m.entries[entry.Key] = &stored
	return evicted
}

// evictLocked removes the entry with the lowest priority, breaking ties on the
// oldest LastAccessed (LRU within the priority class). Expired entries are
// swept first; when one is found no live entry has to go.
func (m *memoryTier) evictLocked(now time.Time) bool {
	for key, entry := range m.entries {
		if !entry.Valid(now) {
			delete(m.entries, key)
			return true
		}
	}

	var victim string
	var victimEntry *Entry
	for key, entry := range m.entries {
		if victimEntry == nil ||
			entry.Priority < victimEntry.Priority ||
			(entry.Priority == victimEntry.Priority && entry.LastAccessed.Before(victimEntry.LastAccessed)) {
			victim = key
			victimEntry = entry
		}
	}
	if victimEntry == nil {
		return false
	}
	delete(m.entries, victim)
	return true
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// deleteWhere removes every entry matching the predicate and returns how many
// were dropped.
func (m *memoryTier) deleteWhere(match func(*Entry) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if match(entry) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) deleteContext(cacheContext string) int {
	return m.deleteWhere(func(e *Entry) bool { return e.Context == cacheContext })
}

func (m *memoryTier) deleteByTags(tags []string) int {
	if len(tags) == 0 {
		return 0
	}
	return m.deleteWhere(func(e *Entry) bool { return e.hasAnyTag(tags) })
}

func (m *memoryTier) deletePrefix(prefix string) int {
	if prefix == "" {
		return 0
	}
	return m.deleteWhere(func(e *Entry) bool { return strings.HasPrefix(e.Key, prefix) })
}

func (m *memoryTier) deleteVersion(version string) int {
	return m.deleteWhere(func(e *Entry) bool { return e.Version == version })
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// cloneEntry copies an entry so callers never share the stored tag slice or
// value bytes.
func cloneEntry(entry Entry) Entry {
	if entry.Value != nil {
		value := make([]byte, len(entry.Value))
		copy(value, entry.Value)
		entry.Value = value
	}
	if entry.Tags != nil {
		tags := make([]string, len(entry.Tags))
		copy(tags, entry.Tags)
		entry.Tags = tags
	}
	return entry
}
