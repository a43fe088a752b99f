package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
)

// useMigrations swaps the package migration source for the test.
func useMigrations(t *testing.T, files fs.FS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_readings.up.sql": {Data: []byte(
			"CREATE TABLE readings (id INTEGER PRIMARY KEY, value REAL);")},
		"20260101_000000_readings.down.sql": {Data: []byte(
			"DROP TABLE readings;")},
		"20260102_000000_reading_unit.up.sql": {Data: []byte(
			"ALTER TABLE readings ADD COLUMN unit TEXT;")},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "readings") {
		t.Fatal("readings table not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO readings (value, unit) VALUES (21.5, 'C')"); err != nil {
		t.Fatalf("second migration not applied: %v", err)
	}

	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Pending() = %d migrations, want 0", len(pending))
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	files := testMigrations()
	files["20260103_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() with broken SQL should fail")
	}
	if !tableExists(t, db, "readings") {
		t.Error("earlier migrations should stay applied")
	}
	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "broken" {
		t.Errorf("Pending() = %+v, want only the broken migration", pending)
	}
}

func TestMigrateDown(t *testing.T) {
	files := fstest.MapFS{
		"20260101_000000_readings.up.sql":   {Data: []byte("CREATE TABLE readings (id INTEGER);")},
		"20260101_000000_readings.down.sql": {Data: []byte("DROP TABLE readings;")},
	}
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "readings") {
		t.Error("readings table should be dropped")
	}
	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Pending() = %d, want 1 after rollback", len(pending))
	}

	// Nothing applied: rollback is a no-op.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history = %v", err)
	}
}

func TestMigrate_NoSource(t *testing.T) {
	useMigrations(t, nil)
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() without migrations = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260101_000000_state_history.up.sql", "20260101_000000", "state_history", true, true},
		{"20260101_000000_state_history.down.sql", "20260101_000000", "state_history", false, true},
		{"20260101_000000.up.sql", "20260101_000000", "20260101_000000", true, true},
		{"20260101_000000_x.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
		{"initial.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
