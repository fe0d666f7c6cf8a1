package sqlite

import (
	"context"
	"fmt"
)

// Storage implements the persistence repositories on top of a single SQLite
// database. The queue tables and the durable cache tier share one file so a
// deployment has exactly one storage engine to operate.
type Storage struct {
	pool *ConnectionPool
}

// Open returns a Storage backed by the SQLite database at the given DSN.
func Open(dsn string) (*Storage, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping tests the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate bootstraps the schema. Statements are idempotent so Migrate is safe
// to run on every startup.
func (s *Storage) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS queue_entries (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			service_type TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('waiting','called','in_service','served','cancelled','no_show')),
			position INTEGER NOT NULL CHECK (position > 0),
			joined_at TEXT NOT NULL,
			estimated_wait_minutes INTEGER NOT NULL DEFAULT 0,
			verification_code TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			assigned_to TEXT,
			work_order_id TEXT,
			notes TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		// Codes only need to be unique among active entries; a partial index
		// lets terminal entries keep their historical code.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_entries_active_code
			ON queue_entries(verification_code) WHERE status IN ('waiting','called')`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entries_active
			ON queue_entries(status, position)`,
		`CREATE TABLE IF NOT EXISTS queue_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_open INTEGER NOT NULL DEFAULT 0,
			current_count INTEGER NOT NULL DEFAULT 0,
			last_position INTEGER NOT NULL DEFAULT 0,
			manual_override TEXT NOT NULL DEFAULT '',
			operating_hours TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cache_records (
			key_hash TEXT PRIMARY KEY,
			cache_key TEXT NOT NULL,
			value BLOB NOT NULL,
			semantic_key TEXT,
			context TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			priority TEXT NOT NULL DEFAULT 'medium',
			version TEXT,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_records_expires ON cache_records(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_records_context ON cache_records(context)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", mapSQLiteError(err))
		}
	}
	return nil
}
