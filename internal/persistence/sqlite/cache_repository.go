package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

const cacheColumns = `key_hash, cache_key, value, semantic_key, context, tags,
	priority, version, created_at, expires_at, access_count, last_accessed`

// GetRecord retrieves a durable cache record by key fingerprint.
func (s *Storage) GetRecord(ctx context.Context, keyHash string) (persistence.CacheRecord, error) {
	if keyHash == "" {
		return persistence.CacheRecord{}, persistence.ErrNotFound
	}

	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+cacheColumns+` FROM cache_records WHERE key_hash = ?`, keyHash)

	var record persistence.CacheRecord
	var semanticKey, recordContext, version sql.NullString
	var tags, createdAt, expiresAt, lastAccessed string

	err := row.Scan(
		&record.KeyHash,
		&record.Key,
		&record.Value,
		&semanticKey,
		&recordContext,
		&tags,
		&record.Priority,
		&version,
		&createdAt,
		&expiresAt,
		&record.AccessCount,
		&lastAccessed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.CacheRecord{}, persistence.ErrNotFound
		}
		return persistence.CacheRecord{}, mapSQLiteError(err)
	}

	if semanticKey.Valid {
		record.SemanticKey = &semanticKey.String
	}
	if recordContext.Valid {
		record.Context = &recordContext.String
	}
	if version.Valid {
		record.Version = &version.String
	}

	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		return persistence.CacheRecord{}, fmt.Errorf("failed to decode tags: %w", err)
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return persistence.CacheRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if record.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return persistence.CacheRecord{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if record.LastAccessed, err = time.Parse(time.RFC3339Nano, lastAccessed); err != nil {
		return persistence.CacheRecord{}, fmt.Errorf("failed to parse last_accessed: %w", err)
	}

	return record, nil
}

// PutRecord upserts a durable cache record.
func (s *Storage) PutRecord(ctx context.Context, record persistence.CacheRecord) error {
	if record.KeyHash == "" {
		return persistence.ErrConstraintViolation
	}

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.pool.DB().ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_records (`+cacheColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.KeyHash,
		record.Key,
		record.Value,
		nullString(record.SemanticKey),
		nullString(record.Context),
		string(encodedTags),
		record.Priority,
		nullString(record.Version),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.ExpiresAt.UTC().Format(time.RFC3339Nano),
		record.AccessCount,
		record.LastAccessed.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// DeleteRecord removes a single durable cache record. Deleting a missing
// record is not an error; the cache is disposable state.
func (s *Storage) DeleteRecord(ctx context.Context, keyHash string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE key_hash = ?`, keyHash)
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// DeleteExpired removes records whose expiry has passed the reference time.
func (s *Storage) DeleteExpired(ctx context.Context, reference time.Time) (int, error) {
	result, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE expires_at <= ?`,
		reference.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteContext removes every record in the given namespace.
func (s *Storage) DeleteContext(ctx context.Context, cacheContext string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE context = ?`, cacheContext)
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// DeleteByTags removes records carrying any of the given tags (union match).
func (s *Storage) DeleteByTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	conditions := make([]string, 0, len(tags))
	args := make([]any, 0, len(tags))
	for _, tag := range tags {
		encoded, err := json.Marshal(tag)
		if err != nil {
			return fmt.Errorf("failed to encode tag: %w", err)
		}
		// Tags are stored as a JSON array; matching the quoted literal inside
		// the array text avoids a JSON1 dependency.
		conditions = append(conditions, "tags LIKE ?")
		args = append(args, "%"+string(encoded)+"%")
	}

	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE `+strings.Join(conditions, " OR "), args...)
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// DeletePrefix removes records whose original key starts with the prefix.
func (s *Storage) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE cache_key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// DeleteVersion removes records stamped with the given version.
func (s *Storage) DeleteVersion(ctx context.Context, version string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM cache_records WHERE version = ?`, version)
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}
