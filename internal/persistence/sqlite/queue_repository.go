package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

const entryColumns = `id, customer_id, service_type, status, position, joined_at,
	estimated_wait_minutes, verification_code, expires_at, assigned_to,
	work_order_id, notes, created_at, updated_at`

// GetEntry retrieves a queue entry by ID.
func (s *Storage) GetEntry(ctx context.Context, id string) (persistence.QueueEntry, error) {
	if id == "" {
		return persistence.QueueEntry{}, persistence.ErrNotFound
	}

	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return persistence.QueueEntry{}, err
	}
	return entry, nil
}

// GetEntryByCode retrieves the active entry holding the given verification
// code. Codes are only unique among active entries, so terminal entries are
// excluded from the lookup.
func (s *Storage) GetEntryByCode(ctx context.Context, code string) (persistence.QueueEntry, error) {
	if code == "" {
		return persistence.QueueEntry{}, persistence.ErrNotFound
	}

	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM queue_entries
		 WHERE verification_code = ? AND status IN ('waiting','called')`, code)
	entry, err := scanEntry(row)
	if err != nil {
		return persistence.QueueEntry{}, err
	}
	return entry, nil
}

// QueryActive returns waiting and called entries ordered by position.
func (s *Storage) QueryActive(ctx context.Context) ([]persistence.QueueEntry, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+entryColumns+` FROM queue_entries
		 WHERE status IN ('waiting','called')
		 ORDER BY position ASC, joined_at ASC, id ASC`)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var entries []persistence.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}
	return entries, nil
}

// CreateEntry assigns the next position of the epoch, inserts the entry built
// by the factory, and updates the status aggregate, all in one transaction.
func (s *Storage) CreateEntry(ctx context.Context, build persistence.EntryFactory) (persistence.QueueEntry, error) {
	if build == nil {
		return persistence.QueueEntry{}, fmt.Errorf("sqlite: entry factory is nil")
	}

	var created persistence.QueueEntry
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := ensureStatusRow(tx); err != nil {
			return err
		}

		var lastPosition int
		if err := tx.QueryRow(`SELECT last_position FROM queue_status WHERE id = 1`).Scan(&lastPosition); err != nil {
			return mapSQLiteError(err)
		}

		entry := build(lastPosition + 1)
		if entry.ID == "" {
			return persistence.ErrConstraintViolation
		}

		assignedTo := nullString(entry.AssignedTo)
		workOrderID := nullString(entry.WorkOrderID)
		notes := nullString(entry.Notes)

		_, err := tx.Exec(`
			INSERT INTO queue_entries (`+entryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.CustomerID,
			entry.ServiceType,
			entry.Status,
			entry.Position,
			entry.JoinedAt.UTC().Format(time.RFC3339Nano),
			entry.EstimatedWaitMinutes,
			entry.VerificationCode,
			entry.ExpiresAt.UTC().Format(time.RFC3339Nano),
			assignedTo,
			workOrderID,
			notes,
			entry.CreatedAt.UTC().Format(time.RFC3339Nano),
			entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return mapSQLiteError(err)
		}

		if err := refreshAggregate(tx, entry.Position, entry.UpdatedAt); err != nil {
			return err
		}

		created = entry
		return nil
	})
	if err != nil {
		return persistence.QueueEntry{}, err
	}
	return created, nil
}

// TransactionalUpdate applies a read-modify-write on one entry and refreshes
// the status aggregate before committing.
func (s *Storage) TransactionalUpdate(ctx context.Context, id string, mutate persistence.EntryMutator) (persistence.QueueEntry, error) {
	if id == "" {
		return persistence.QueueEntry{}, persistence.ErrNotFound
	}
	if mutate == nil {
		return persistence.QueueEntry{}, fmt.Errorf("sqlite: entry mutator is nil")
	}

	var updated persistence.QueueEntry
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
		current, err := scanEntry(row)
		if err != nil {
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		result, err := tx.Exec(`
			UPDATE queue_entries
			SET status = ?, estimated_wait_minutes = ?, verification_code = ?,
				expires_at = ?, assigned_to = ?, work_order_id = ?, notes = ?,
				updated_at = ?
			WHERE id = ?`,
			next.Status,
			next.EstimatedWaitMinutes,
			next.VerificationCode,
			next.ExpiresAt.UTC().Format(time.RFC3339Nano),
			nullString(next.AssignedTo),
			nullString(next.WorkOrderID),
			nullString(next.Notes),
			next.UpdatedAt.UTC().Format(time.RFC3339Nano),
			id,
		)
		if err != nil {
			return mapSQLiteError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		if err := refreshAggregate(tx, 0, next.UpdatedAt); err != nil {
			return err
		}

		updated = next
		return nil
	})
	if err != nil {
		return persistence.QueueEntry{}, err
	}
	return updated, nil
}

// CancelActive force-transitions every active entry to the given terminal
// status and starts a new position epoch.
func (s *Storage) CancelActive(ctx context.Context, status string, at time.Time) (int, error) {
	affected := 0
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := ensureStatusRow(tx); err != nil {
			return err
		}

		result, err := tx.Exec(`
			UPDATE queue_entries SET status = ?, updated_at = ?
			WHERE status IN ('waiting','called')`,
			status, at.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return mapSQLiteError(err)
		}

		count, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		affected = int(count)

		_, err = tx.Exec(`
			UPDATE queue_status SET current_count = 0, last_position = 0, last_updated = ?
			WHERE id = 1`,
			at.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// GetStatus returns the singleton status record, creating it lazily.
func (s *Storage) GetStatus(ctx context.Context) (persistence.QueueStatus, error) {
	var status persistence.QueueStatus
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := ensureStatusRow(tx); err != nil {
			return err
		}

		var isOpen int
		var lastUpdated string
		err := tx.QueryRow(`
			SELECT is_open, current_count, last_position, manual_override, operating_hours, last_updated
			FROM queue_status WHERE id = 1`).Scan(
			&isOpen,
			&status.CurrentCount,
			&status.LastPosition,
			&status.ManualOverride,
			&status.OperatingHoursJSON,
			&lastUpdated,
		)
		if err != nil {
			return mapSQLiteError(err)
		}

		status.IsOpen = isOpen != 0
		if status.LastUpdated, err = time.Parse(time.RFC3339Nano, lastUpdated); err != nil {
			return fmt.Errorf("failed to parse last_updated: %w", err)
		}
		return nil
	})
	if err != nil {
		return persistence.QueueStatus{}, err
	}
	return status, nil
}

// PutStatus persists the schedule-level status fields. Counter columns are
// owned by entry mutations and left untouched.
func (s *Storage) PutStatus(ctx context.Context, status persistence.QueueStatus) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := ensureStatusRow(tx); err != nil {
			return err
		}

		isOpen := 0
		if status.IsOpen {
			isOpen = 1
		}
		_, err := tx.Exec(`
			UPDATE queue_status
			SET is_open = ?, manual_override = ?, operating_hours = ?, last_updated = ?
			WHERE id = 1`,
			isOpen,
			status.ManualOverride,
			status.OperatingHoursJSON,
			status.LastUpdated.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
}

// ensureStatusRow lazily creates the singleton status record with defaults.
func ensureStatusRow(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO queue_status (id, is_open, current_count, last_position, manual_override, operating_hours, last_updated)
		VALUES (1, 0, 0, 0, '', '', ?)`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// refreshAggregate recomputes current_count from the entry table inside the
// caller's transaction, so counts can never drift from entry state. When
// position is non-zero the epoch counter advances to it as well.
func refreshAggregate(tx *sql.Tx, position int, at time.Time) error {
	query := `
		UPDATE queue_status
		SET current_count = (SELECT COUNT(*) FROM queue_entries WHERE status IN ('waiting','called')),
			last_updated = ?
		WHERE id = 1`
	args := []any{at.UTC().Format(time.RFC3339Nano)}
	if position > 0 {
		query = `
		UPDATE queue_status
		SET current_count = (SELECT COUNT(*) FROM queue_entries WHERE status IN ('waiting','called')),
			last_position = ?,
			last_updated = ?
		WHERE id = 1`
		args = []any{position, at.UTC().Format(time.RFC3339Nano)}
	}

	if _, err := tx.Exec(query, args...); err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry decodes one queue_entries row.
func scanEntry(row rowScanner) (persistence.QueueEntry, error) {
	var entry persistence.QueueEntry
	var joinedAt, expiresAt, createdAt, updatedAt string
	var assignedTo, workOrderID, notes sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.CustomerID,
		&entry.ServiceType,
		&entry.Status,
		&entry.Position,
		&joinedAt,
		&entry.EstimatedWaitMinutes,
		&entry.VerificationCode,
		&expiresAt,
		&assignedTo,
		&workOrderID,
		&notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.QueueEntry{}, persistence.ErrNotFound
		}
		return persistence.QueueEntry{}, mapSQLiteError(err)
	}

	if assignedTo.Valid {
		entry.AssignedTo = &assignedTo.String
	}
	if workOrderID.Valid {
		entry.WorkOrderID = &workOrderID.String
	}
	if notes.Valid {
		entry.Notes = &notes.String
	}

	if entry.JoinedAt, err = time.Parse(time.RFC3339Nano, joinedAt); err != nil {
		return persistence.QueueEntry{}, fmt.Errorf("failed to parse joined_at: %w", err)
	}
	if entry.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return persistence.QueueEntry{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return persistence.QueueEntry{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return persistence.QueueEntry{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return entry, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
