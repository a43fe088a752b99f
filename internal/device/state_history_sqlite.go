package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	sqliteTimestampLayout = "2006-01-02T15:04:05Z"
)

// SQLiteStateHistoryRepository stores state snapshots as JSON in the
// state_history table.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
	// now is swapped in tests.
	now func() time.Time
}

// NewSQLiteStateHistoryRepository creates a repository over an open database.
//
// Parameters:
//   - db: migrated SQLite connection (see database.Open and Migrate)
//
// Returns:
//   - *SQLiteStateHistoryRepository: ready for use; safe for concurrent callers
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db, now: time.Now}
}

// RecordStateChange inserts one history row.
//
// Parameters:
//   - ctx: context for cancellation and timeout
//   - deviceID: IEEE address of the device
//   - state: merged state after the change
//   - prev: state before the change (may be empty)
//   - source: origin of the change; empty records "mqtt"
//
// Returns:
//   - error: nil on success, otherwise the wrapped database error
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, deviceID string, state, prev State, source string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	if source == "" {
		source = StateHistorySourceMQTT
	}
	if state == nil {
		state = State{}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	var prevJSON sql.NullString
	if prev != nil {
		b, err := json.Marshal(prev)
		if err != nil {
			return fmt.Errorf("marshalling previous state: %w", err)
		}
		prevJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, prev, source, created_at) VALUES (?, ?, ?, ?, ?)",
		deviceID, string(stateJSON), prevJSON, source,
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a device, newest first.
//
// Parameters:
//   - ctx: context for cancellation and timeout
//   - deviceID: IEEE address of the device
//   - limit: maximum entries (<= 0 means 50, capped at 200)
//
// Returns:
//   - []StateHistoryEntry: entries ordered by created_at DESC, never nil
//   - error: nil on success, otherwise the wrapped query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, state, prev, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     StateHistoryEntry
			stateJSON string
			prevJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &prevJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		if prevJSON.Valid {
			if err := json.Unmarshal([]byte(prevJSON.String), &entry.Prev); err != nil {
				return nil, fmt.Errorf("unmarshalling previous state: %w", err)
			}
		}
		if entry.CreatedAt, err = parseHistoryTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than now-olderThan.
//
// Parameters:
//   - ctx: context for cancellation and timeout
//   - olderThan: retention window; rows created before now-olderThan go
//
// Returns:
//   - int64: number of rows deleted
//   - error: nil on success, otherwise the wrapped database error
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(sqliteTimestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", value, err)
	}
	return ts, nil
}
