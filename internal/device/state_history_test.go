package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
	_ "github.com/nerrad567/homecore/migrations"
)

// setupStateHistoryTestDB opens a migrated database in a temp directory.
func setupStateHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// repoAt returns a repository whose clock reads *now.
func repoAt(db *sql.DB, now *time.Time) *SQLiteStateHistoryRepository {
	r := NewSQLiteStateHistoryRepository(db)
	r.now = func() time.Time { return *now }
	return r
}

func TestRecordStateChange(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := repoAt(db, &now)
	ctx := context.Background()

	err := repo.RecordStateChange(ctx, "0x01", State{"state": "ON"}, State{"state": "OFF"}, "")
	if err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "0x01", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.State["state"] != "ON" || e.Prev["state"] != "OFF" {
		t.Errorf("entry = %+v", e)
	}
	if e.Source != StateHistorySourceMQTT {
		t.Errorf("Source = %q, want default mqtt", e.Source)
	}
	if !e.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, now)
	}
}

func TestRecordStateChange_NoPrev(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "0x01", nil, nil, StateHistorySourceAutomation); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	entries, err := repo.GetHistory(ctx, "0x01", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Prev != nil || len(entries[0].State) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestStateHistory_MissingDeviceID(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupStateHistoryTestDB(t))
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", State{}, nil, ""); !errors.Is(err, ErrMissingDeviceID) {
		t.Errorf("RecordStateChange() error = %v", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrMissingDeviceID) {
		t.Errorf("GetHistory() error = %v", err)
	}
}

func TestGetHistory_NewestFirstAndLimit(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := repoAt(db, &now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		if err := repo.RecordStateChange(ctx, "0x01", State{"n": float64(i)}, nil, ""); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}
	if err := repo.RecordStateChange(ctx, "0x02", State{"n": 99.0}, nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "0x01", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].State["n"] != 4.0 || entries[2].State["n"] != 2.0 {
		t.Errorf("order = %v, %v, %v", entries[0].State, entries[1].State, entries[2].State)
	}
}

func TestPruneHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := repoAt(db, &now)
	ctx := context.Background()

	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	for _, at := range []time.Time{old, recent} {
		now = at
		if err := repo.RecordStateChange(ctx, "0x01", State{"state": "ON"}, nil, ""); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}
	now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}
}

func TestParseHistoryTimestamp(t *testing.T) {
	if _, err := parseHistoryTimestamp("2026-03-01T12:00:00Z"); err != nil {
		t.Errorf("RFC3339: %v", err)
	}
	if _, err := parseHistoryTimestamp(""); err == nil {
		t.Error("empty timestamp should fail")
	}
	if _, err := parseHistoryTimestamp("yesterday"); err == nil {
		t.Error("garbage timestamp should fail")
	}
}
