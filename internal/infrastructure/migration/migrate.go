// Package migration applies and authors the SQL schema migrations of the
// sync store.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// MigrationsTable is the version table golang-migrate keeps
const MigrationsTable = "ebaysync_schema_migrations"

// Status is the schema version of a database
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Applied is false when no migration ran yet
	Applied bool `json:"applied"`
}

// Migrator applies the file migrations of one directory to Postgres
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New creates a Migrator over an open Postgres connection
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{migrate: m, logger: logger}, nil
}

// Up applies every pending migration
func (m *Migrator) Up() (Status, error) {
	m.logger.Info("Running migrations up")
	return m.apply("up", m.migrate.Up)
}

// Down rolls back every applied migration
func (m *Migrator) Down() (Status, error) {
	m.logger.Info("Running migrations down")
	return m.apply("down", m.migrate.Down)
}

// Steps applies n migrations, positive up and negative down
func (m *Migrator) Steps(n int) (Status, error) {
	if n == 0 {
		return m.Version()
	}
	m.logger.Info("Running migration steps", zap.Int("steps", n))
	return m.apply("steps", func() error { return m.migrate.Steps(n) })
}

func (m *Migrator) apply(op string, fn func() error) (Status, error) {
	err := fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info("No migrations to apply", zap.String("op", op))
	case err != nil:
		return Status{}, fmt.Errorf("migration %s failed: %w", op, err)
	}

	st, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	m.logger.Info("Migrations completed",
		zap.String("op", op),
		zap.Uint("version", st.Version),
		zap.Bool("dirty", st.Dirty),
	)
	return st, nil
}

// Version reports the current schema version
func (m *Migrator) Version() (Status, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

// Force records version as applied and clears the dirty flag without
// running any migration. -1 means no version.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
