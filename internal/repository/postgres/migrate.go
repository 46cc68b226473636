package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult reports the schema version before and after a run.
type MigrationResult struct {
	From    uint
	To      uint
	Changed bool
}

func migrationSource() (source.Driver, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("access migrations directory: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// Migrate moves the schema to target. A negative target means latest, zero
// rolls everything back.
func Migrate(db *sql.DB, target int) (MigrationResult, error) {
	var res MigrationResult

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return res, fmt.Errorf("create postgres migrate driver: %w", err)
	}
	src, err := migrationSource()
	if err != nil {
		return res, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return res, fmt.Errorf("create migrate instance: %w", err)
	}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return res, fmt.Errorf("database is dirty at version %d; force a version before migrating", from)
	}
	res.From = from

	switch {
	case target < 0:
		err = m.Up()
	case target == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(target))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		res.To = from
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}

	to, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("read migration version: %w", err)
	}
	res.To = to
	res.Changed = true
	return res, nil
}
