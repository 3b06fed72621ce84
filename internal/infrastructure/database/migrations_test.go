package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_switches.up.sql":   {Data: []byte("CREATE TABLE switches (id TEXT PRIMARY KEY);")},
		"20260301_090000_switches.down.sql": {Data: []byte("DROP TABLE switches;")},
		"20260302_100000_owners.up.sql":     {Data: []byte("CREATE TABLE owners (id TEXT PRIMARY KEY);")},
		"README.md":                         {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"switches", "owners"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureStopsRun(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"20260301_090000_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260302_090000_broken.up.sql": {Data: []byte("CREATE TABLE nonsense (")},
		"20260303_090000_later.up.sql":  {Data: []byte("CREATE TABLE later_table (id INTEGER);")},
	}

	if err := db.Migrate(context.Background(), fsys); err == nil {
		t.Fatal("Migrate() succeeded with broken migration")
	}
	if !tableExists(t, db, "ok_table") {
		t.Error("earlier migration was not kept")
	}
	if tableExists(t, db, "later_table") {
		t.Error("migration after the failure was applied")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260301_090000_switches.up.sql":   {Data: []byte("CREATE TABLE switches (id TEXT PRIMARY KEY);")},
		"20260301_090000_switches.down.sql": {Data: []byte("DROP TABLE switches;")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "switches") {
		t.Error("switches table still exists after rollback")
	}

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260302_100000_owners.up.sql": {Data: []byte("CREATE TABLE owners (id TEXT);")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Error("MigrateDown() succeeded without down SQL")
	}
}

func TestMigrateDown_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := db.MigrateDown(context.Background(), fstest.MapFS{}); err != nil {
		t.Errorf("MigrateDown() on fresh database error = %v", err)
	}
}

func TestLoadMigrations_Nil(t *testing.T) {
	got, err := LoadMigrations(nil)
	if err != nil || got != nil {
		t.Errorf("LoadMigrations(nil) = %v, %v", got, err)
	}
}

func TestLoadMigrations_OrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301_090000_x.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() accepted a down file with no up file")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_devices.up.sql", "20260301_090000", "devices", true, true},
		{"20260301_090000_device_state.down.sql", "20260301_090000", "device_state", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "", true, true},
		{"20260301.up.sql", "", "", false, false},
		{"20260301_090000_devices.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
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
