package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the journal schema the embedded migrations produce:
// 1 adds the capture journal, 2 the script history.
const SchemaVersion uint = 2

// schemaTable records the applied journal schema version.
const schemaTable = "opconsole_schema"

//go:embed migrations/*.sql
var journalSchema embed.FS

// RunMigrations brings the capture journal and script history up to
// SchemaVersion and returns the version the database is at afterwards.
// Versions already applied are skipped. A database left dirty by an
// interrupted run is reported as an error, never forced.
func RunMigrations(db *sql.DB) (uint, error) {
	m, err := journalMigrator(db)
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate journal schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read journal schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("journal schema version %d is dirty", version)
	}
	return version, nil
}

// journalMigrator binds the embedded schema to db. The migrator is never
// closed: closing the sqlite driver would close db.
func journalMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(journalSchema, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded journal schema: %w", err)
	}

	target, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: schemaTable})
	if err != nil {
		return nil, fmt.Errorf("bind journal schema to database: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return nil, fmt.Errorf("create journal migrator: %w", err)
	}
	return m, nil
}
