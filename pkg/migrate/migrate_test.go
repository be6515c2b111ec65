package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir() error = %v", err)
	}
	if err := ValidateDir("sqlite"); err != nil {
		t.Fatalf("ValidateDir(sqlite) error = %v", err)
	}
}

func TestBookingsMigrationGuardsWindows(t *testing.T) {
	content := readMigration(t, "*_create_bookings.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bookings",
		"CONSTRAINT bookings_charger_window_excl EXCLUDE USING gist",
		"tstzrange(window_start, window_end, '[)') WITH &&",
		"WHERE (type = 'scheduled' AND status IN ('booked', 'active'))",
		"bookings_one_active_per_charger",
		"DROP TABLE IF EXISTS bookings",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestStationsMigrationContainsGeography(t *testing.T) {
	content := readMigration(t, "*_create_stations.sql")

	checks := []string{
		"geom geography(Point, 4326) NOT NULL",
		"chargers jsonb NOT NULL",
		"version bigint NOT NULL DEFAULT 1",
		"USING gist (geom)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRunSQLiteCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	if err := RunSQLite(context.Background(), sqlDB); err != nil {
		t.Fatalf("RunSQLite() error = %v", err)
	}
	if err := RunSQLite(context.Background(), sqlDB); err != nil {
		t.Fatalf("RunSQLite() should be idempotent, got %v", err)
	}

	for _, table := range []string{"stations", "bookings", "outbox_events", "outbox_dlq", "notifications"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestSQLiteMigratorStatus(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_status?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	m, err := NewSQLite(sqlDB)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	ctx := context.Background()

	rows, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(rows) == 0 || rows[0].Applied {
		t.Fatalf("expected pending migrations before up, got %+v", rows)
	}

	applied, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != len(rows) {
		t.Fatalf("expected %d applied, got %d", len(rows), applied)
	}
	version, err := m.Version(ctx)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != rows[len(rows)-1].Version {
		t.Fatalf("expected version %d, got %d", rows[len(rows)-1].Version, version)
	}
	if err := m.To(ctx, version); err != nil {
		t.Fatalf("To(current) should be a no-op, got %v", err)
	}
}

func TestEmbeddedPostgresMigrationsLoad(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_embedded?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if _, err := NewPostgres(sqlDB, ""); err != nil {
		t.Fatalf("embedded postgres set should parse: %v", err)
	}
	if _, err := NewSQLite(nil); err == nil {
		t.Fatal("expected error without db")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Charger Tags")
	if err != nil {
		t.Fatalf("CreateSQLMigration() error = %v", err)
	}
	if !strings.HasSuffix(path, "_add_charger_tags.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateDirRejectsBrokenFiles(t *testing.T) {
	const ok = "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]map[string]string{
		"bad name":       {"add_tags.sql": ok},
		"duplicate":      {"20260101000000_a.sql": ok, "20260101000000_b.sql": ok},
		"missing down":   {"20260101000000_a.sql": "-- +goose Up\nSELECT 1;\n"},
		"down before up": {"20260101000000_a.sql": "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n"},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for file, body := range files {
				if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
					t.Fatalf("write %s: %v", file, err)
				}
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), " -- "); err == nil {
		t.Fatal("expected error for empty slug")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
