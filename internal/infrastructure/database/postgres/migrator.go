// Package postgres stores analysis records in PostgreSQL through the pgx
// database/sql driver. Schema changes are applied with golang-migrate from
// the migrations directory.
package postgres

import (
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

func (c *Connection) migrator(migrationsDir string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(c.db, &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return m, nil
}

// RunMigrations applies every pending migration. No pending migrations is
// not an error.
func (c *Connection) RunMigrations(migrationsDir string) error {
	m, err := c.migrator(migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail(fmt.Sprintf("current version: %d", version))
	}

	version, dirty, err := m.Version()
	if err != nil && !stderrors.Is(err, migrate.ErrNilVersion) {
		c.logger.Warn("failed to read migration version", logging.Err(err))
	}
	c.logger.Info("database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// RollbackMigrations reverts the last steps migrations.
func (c *Connection) RollbackMigrations(migrationsDir string, steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.ErrCodeValidation, "steps must be greater than 0, got %d", steps)
	}
	m, err := c.migrator(migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeDatabaseError, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	return nil
}

// MigrationStatus returns the applied version and whether a previous
// migration left the schema dirty. A fresh database reports version 0.
func (c *Connection) MigrationStatus(migrationsDir string) (uint, bool, error) {
	m, err := c.migrator(migrationsDir)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return version, dirty, nil
}
