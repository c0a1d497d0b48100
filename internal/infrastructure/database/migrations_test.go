package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20260301_090000_first.up.sql":    {Data: []byte("CREATE TABLE first (id INTEGER PRIMARY KEY);")},
		"sql/20260301_090000_first.down.sql":  {Data: []byte("DROP TABLE first;")},
		"sql/20260302_100000_second.up.sql":   {Data: []byte("CREATE TABLE second (id INTEGER PRIMARY KEY);")},
		"sql/20260302_100000_second.down.sql": {Data: []byte("DROP TABLE second;")},
		"sql/README.md":                       {Data: []byte("not a migration")},
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

// =============================================================================
// Migrate
// =============================================================================

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "first") || !tableExists(t, db, "second") {
		t.Fatal("migrations not applied")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys, "sql")
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2/0", len(applied), len(pending))
	}
	if applied[0].Version != "20260301_090000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("first record = %+v", applied[0])
	}

	// Idempotent
	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrate_Pending(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	delete(fsys, "sql/20260302_100000_second.up.sql")
	delete(fsys, "sql/20260302_100000_second.down.sql")

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Fatal(err)
	}

	_, pending, err := db.MigrationStatus(ctx, testMigrations(), "sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Name != "second" {
		t.Errorf("pending = %+v, want [second]", pending)
	}
}

func TestMigrate_FailureStopsAndKeepsEarlier(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	fsys["sql/20260302_100000_second.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE broken (")}

	if err := db.Migrate(ctx, fsys, "sql"); err == nil {
		t.Fatal("expected error from broken migration")
	}
	if !tableExists(t, db, "first") {
		t.Error("earlier migration should stay committed")
	}
	applied, _, _ := db.MigrationStatus(ctx, fsys, "sql")
	if len(applied) != 1 {
		t.Errorf("applied = %d, want 1", len(applied))
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil, "."); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Fatal(err)
	}
	if err := db.Rollback(ctx, fsys, "sql"); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if tableExists(t, db, "second") {
		t.Error("second table should be dropped")
	}
	if !tableExists(t, db, "first") {
		t.Error("first table should remain")
	}

	_, pending, _ := db.MigrationStatus(ctx, fsys, "sql")
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestRollback_NothingApplied(t *testing.T) {
	db := openTestDB(t)
	if err := db.Rollback(context.Background(), testMigrations(), "sql"); err != nil {
		t.Errorf("Rollback() error = %v", err)
	}
}

func TestRollback_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	delete(fsys, "sql/20260302_100000_second.down.sql")

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Fatal(err)
	}
	if err := db.Rollback(ctx, fsys, "sql"); err == nil {
		t.Error("expected error when down SQL is missing")
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301_090000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := loadMigrations(fsys, "."); err == nil {
		t.Error("expected error for down migration without up")
	}
}

// =============================================================================
// Filenames
// =============================================================================

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_journal.up.sql", "20260301_090000", true, true},
		{"20260301_090000_journal.down.sql", "20260301_090000", false, true},
		{"20260301_090000.up.sql", "20260301_090000", true, true},
		{"20260301_090000_journal.sql", "", false, false},
		{"20260301_090000_journal.up.txt", "", false, false},
		{"journal.up.sql", "", false, false},
		{"2026_09_journal.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.name)
			if ok != tt.wantOK || version != tt.wantVersion || (ok && isUp != tt.wantUp) {
				t.Errorf("parseMigrationFilename(%q) = %q, %v, %v", tt.name, version, isUp, ok)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := map[string]string{
		"20260301_090000_journal.up.sql":        "journal",
		"20260301_090000_ack_outcomes.down.sql": "ack_outcomes",
		"20260301_090000.up.sql":                "20260301_090000",
	}
	for in, want := range tests {
		if got := extractMigrationName(in); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", in, got, want)
		}
	}
}
