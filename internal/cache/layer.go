package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

// Observer receives cache accounting callbacks, used to feed metrics.
type Observer interface {
	CacheHit(tier string)
	CacheMiss()
	CacheEviction()
}

// Layer is the two-tier cache. Reads check the memory tier first, then the
// durable tier (populating memory on a hit); writes go through both tiers.
// The durable tier is optional: a nil repository degrades to memory-only.
type Layer struct {
	memory     *memoryTier
	durable    persistence.CacheRepository
	rules      *RuleTable
	now        func() time.Time
	defaultTTL time.Duration
	logger     *slog.Logger
	observer   Observer
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithRules installs the event invalidation table.
func WithRules(rules *RuleTable) LayerOption {
	return func(l *Layer) {
		if rules != nil {
			l.rules = rules
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(observer Observer) LayerOption {
	return func(l *Layer) {
		l.observer = observer
	}
}

// WithLogger sets the logger used for durable-tier failures.
func WithLogger(logger *slog.Logger) LayerOption {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLayer constructs a Layer. When now is nil, time.Now is used; a
// non-positive defaultTTL falls back to 5 minutes.
func NewLayer(durable persistence.CacheRepository, capacity int, defaultTTL time.Duration, now func() time.Time, opts ...LayerOption) *Layer {
	if now == nil {
		now = time.Now
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	layer := &Layer{
		memory:     newMemoryTier(capacity),
		durable:    durable,
		rules:      NewRuleTable(),
		now:        now,
		defaultTTL: defaultTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(layer)
	}
	return layer
}

// SetOption configures one Set call.
type SetOption func(*Entry)

// InContext namespaces the entry.
func InContext(cacheContext string) SetOption {
	return func(e *Entry) { e.Context = cacheContext }
}

// WithTags attaches bulk-invalidation tags.
func WithTags(tags ...string) SetOption {
	return func(e *Entry) { e.Tags = append(e.Tags, tags...) }
}

// WithPriority overrides the default medium priority.
func WithPriority(priority Priority) SetOption {
	return func(e *Entry) { e.Priority = priority }
}

// WithSemanticKey attaches a coarse grouping key.
func WithSemanticKey(semanticKey string) SetOption {
	return func(e *Entry) { e.SemanticKey = semanticKey }
}

// WithVersion stamps the entry for version-scoped invalidation.
func WithVersion(version string) SetOption {
	return func(e *Entry) { e.Version = version }
}

// Get returns the cached value for key, if present and unexpired in either
// tier. Durable-tier failures are logged and degrade to a miss; the cache is
// never allowed to fail a read path.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	now := l.now()

	if entry, ok := l.memory.get(key, now); ok {
		l.observeHit("memory")
		return entry.Value, true
	}

	if l.durable == nil {
		l.observeMiss()
		return nil, false
	}

	record, err := l.durable.GetRecord(ctx, Fingerprint(key))
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			l.logger.WarnContext(ctx, "durable cache read failed", "key", key, "error", err)
		}
		l.observeMiss()
		return nil, false
	}

	if !now.Before(record.ExpiresAt) {
		// Expired durable records are deleted off the request path.
		go func(keyHash string) {
			if err := l.durable.DeleteRecord(context.Background(), keyHash); err != nil {
				l.logger.Warn("durable cache cleanup failed", "error", err)
			}
		}(record.KeyHash)
		l.observeMiss()
		return nil, false
	}

	entry := recordToEntry(record)
	entry.AccessCount++
	entry.LastAccessed = now
	if l.memory.set(entry, now) {
		l.observeEviction()
	}

	l.observeHit("durable")
	return entry.Value, true
}

// Set writes the value through both tiers. A non-positive ttl uses the layer
// default.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration, opts ...SetOption) error {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	entry := Entry{
		Key:          key,
		Value:        value,
		Priority:     PriorityMedium,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if l.memory.set(entry, now) {
		l.observeEviction()
	}

	if l.durable == nil {
		return nil
	}
	if err := l.durable.PutRecord(ctx, entryToRecord(entry)); err != nil {
		l.logger.WarnContext(ctx, "durable cache write failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete drops one key from both tiers.
func (l *Layer) Delete(ctx context.Context, key string) {
	l.memory.delete(key)
	if l.durable != nil {
		if err := l.durable.DeleteRecord(ctx, Fingerprint(key)); err != nil {
			l.logger.WarnContext(ctx, "durable cache delete failed", "key", key, "error", err)
		}
	}
}

// ClearContext drops every entry in the namespace from both tiers.
func (l *Layer) ClearContext(ctx context.Context, cacheContext string) {
	l.memory.deleteContext(cacheContext)
	if l.durable != nil {
		if err := l.durable.DeleteContext(ctx, cacheContext); err != nil {
			l.logger.WarnContext(ctx, "durable cache context clear failed", "context", cacheContext, "error", err)
		}
	}
}

// ClearByTags drops entries carrying any of the given tags (union match).
func (l *Layer) ClearByTags(ctx context.Context, tags []string) {
	l.memory.deleteByTags(tags)
	if l.durable != nil {
		if err := l.durable.DeleteByTags(ctx, tags); err != nil {
			l.logger.WarnContext(ctx, "durable cache tag clear failed", "error", err)
		}
	}
}

// ClearPattern drops entries whose key starts with the prefix.
func (l *Layer) ClearPattern(ctx context.Context, prefix string) {
	l.memory.deletePrefix(prefix)
	if l.durable != nil {
		if err := l.durable.DeletePrefix(ctx, prefix); err != nil {
			l.logger.WarnContext(ctx, "durable cache pattern clear failed", "prefix", prefix, "error", err)
		}
	}
}

// ClearVersion drops entries stamped with the given version.
func (l *Layer) ClearVersion(ctx context.Context, version string) {
	l.memory.deleteVersion(version)
	if l.durable != nil {
		if err := l.durable.DeleteVersion(ctx, version); err != nil {
			l.logger.WarnContext(ctx, "durable cache version clear failed", "version", version, "error", err)
		}
	}
}

// HandleEvent applies the invalidation rule registered for the event, in the
// order rules name their surfaces. Unknown events are ignored.
func (l *Layer) HandleEvent(ctx context.Context, event string) {
	rule, ok := l.rules.Lookup(event)
	if !ok {
		return
	}
	for _, key := range rule.Keys {
		l.Delete(ctx, key)
	}
	for _, prefix := range rule.Prefixes {
		l.ClearPattern(ctx, prefix)
	}
	for _, cacheContext := range rule.Contexts {
		l.ClearContext(ctx, cacheContext)
	}
	if len(rule.Tags) > 0 {
		l.ClearByTags(ctx, rule.Tags)
	}
}

// Len reports the memory-tier entry count.
func (l *Layer) Len() int {
	return l.memory.len()
}

func (l *Layer) observeHit(tier string) {
	if l.observer != nil {
		l.observer.CacheHit(tier)
	}
}

func (l *Layer) observeMiss() {
	if l.observer != nil {
		l.observer.CacheMiss()
	}
}

func (l *Layer) observeEviction() {
	if l.observer != nil {
		l.observer.CacheEviction()
	}
}

func recordToEntry(record persistence.CacheRecord) Entry {
	entry := Entry{
		Key:          record.Key,
		Value:        record.Value,
		Priority:     ParsePriority(record.Priority),
		Tags:         record.Tags,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
		AccessCount:  record.AccessCount,
		LastAccessed: record.LastAccessed,
	}
	if record.SemanticKey != nil {
		entry.SemanticKey = *record.SemanticKey
	}
	if record.Context != nil {
		entry.Context = *record.Context
	}
	if record.Version != nil {
		entry.Version = *record.Version
	}
	return entry
}

func entryToRecord(entry Entry) persistence.CacheRecord {
	record := persistence.CacheRecord{
		KeyHash:      Fingerprint(entry.Key),
		Key:          entry.Key,
		Value:        entry.Value,
		Tags:         entry.Tags,
		Priority:     entry.Priority.String(),
		CreatedAt:    entry.CreatedAt,
		ExpiresAt:    entry.ExpiresAt,
		AccessCount:  entry.AccessCount,
		LastAccessed: entry.LastAccessed,
	}
	if entry.SemanticKey != "" {
		semanticKey := entry.SemanticKey
		record.SemanticKey = &semanticKey
	}
	if entry.Context != "" {
		cacheContext := entry.Context
		record.Context = &cacheContext
	}
	if entry.Version != "" {
		version := entry.Version
		record.Version = &version
	}
	return record
}
