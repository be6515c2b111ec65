// Package migrate applies the Postgres schema with goose and keeps a reduced
// sqlite schema for local runs and tests. Both sets are embedded in the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

// DefaultDir is where new Postgres migrations are created.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql sqlite/*.sql
var embedded embed.FS

var errNoDB = errors.New("migrate: db is required")

// Status is one migration and whether it has been applied.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator wraps a goose provider bound to one database and migration set.
type Migrator struct {
	provider *goose.Provider
}

// NewPostgres reads migrations from dir on disk, or the embedded set when dir
// is empty.
func NewPostgres(sqlDB *sql.DB, dir string) (*Migrator, error) {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embedded, "migrations")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	return newMigrator(goose.DialectPostgres, sqlDB, fsys)
}

func NewSQLite(sqlDB *sql.DB) (*Migrator, error) {
	sub, err := fs.Sub(embedded, "sqlite")
	if err != nil {
		return nil, err
	}
	return newMigrator(goose.DialectSQLite3, sqlDB, sub)
}

func newMigrator(dialect goose.Dialect, sqlDB *sql.DB, fsys fs.FS) (*Migrator, error) {
	if sqlDB == nil {
		return nil, errNoDB
	}
	p, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider (%s): %w", dialect, err)
	}
	return &Migrator{provider: p}, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Redo rolls back and reapplies the most recent migration.
func (m *Migrator) Redo(ctx context.Context) error {
	if err := m.Down(ctx); err != nil {
		return err
	}
	if _, err := m.provider.UpByOne(ctx); err != nil {
		return fmt.Errorf("goose redo: %w", err)
	}
	return nil
}

// To moves the schema up or down until target is the current version.
func (m *Migrator) To(ctx context.Context, target int64) error {
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("db version: %w", err)
	}
	switch {
	case target > current:
		_, err = m.provider.UpTo(ctx, target)
	case target < current:
		_, err = m.provider.DownTo(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("goose to %d: %w", target, err)
	}
	return nil
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, r := range rows {
		out = append(out, Status{
			Version:   r.Source.Version,
			Name:      strings.TrimSuffix(filepath.Base(r.Source.Path), ".sql"),
			Applied:   r.State == goose.StateApplied,
			AppliedAt: r.AppliedAt,
		})
	}
	return out, nil
}

// RunSQLite applies the embedded sqlite schema.
func RunSQLite(ctx context.Context, sqlDB *sql.DB) error {
	m, err := NewSQLite(sqlDB)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}

// AutoApply runs at service start. Sqlite runs always get the local schema;
// Postgres is migrated only in dev with EVCHARGE_AUTO_MIGRATE set.
func AutoApply(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	var m *Migrator
	switch {
	case cfg.FeatureFlags.UseSQLite:
		m, err = NewSQLite(sqlDB)
	case cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate:
		m, err = NewPostgres(sqlDB, "")
	default:
		return nil
	}
	if err != nil {
		return err
	}
	applied, err := m.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"applied": applied, "sqlite": cfg.FeatureFlags.UseSQLite}), "schema up to date")
	return nil
}
