package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the newest migration shipped with this build.
const SchemaVersion uint = 2

var (
	ErrSchemaDirty = errors.New("local database schema is dirty")
	ErrSchemaNewer = errors.New("local database schema is newer than this build")
)

// RunMigrations brings the database at dbPath up to SchemaVersion and returns
// the version it ends at. A schema left dirty by an interrupted migration, or
// written by a newer build, is reported instead of touched.
func RunMigrations(dbPath string) (uint, error) {
	// The migrator closes its own connection, never the backend's pool.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return current, fmt.Errorf("%w at version %d", ErrSchemaDirty, current)
	case current > SchemaVersion:
		return current, fmt.Errorf("%w: %d > %d", ErrSchemaNewer, current, SchemaVersion)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	return SchemaVersion, nil
}
