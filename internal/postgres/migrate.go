package postgres

import (
	"embed"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending migration. dsn must be a postgres:// URL.
func Migrate(dsn string, log logrus.FieldLogger) error {
	return runMigrations(dsn, log, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts the given number of migrations.
func MigrateDown(dsn string, steps int, log logrus.FieldLogger) error {
	return runMigrations(dsn, log, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func runMigrations(dsn string, log logrus.FieldLogger, apply func(*migrate.Migrate) error) (err error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return errors.Wrap(err, "init migrate")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil && srcErr != nil {
			err = errors.Wrap(srcErr, "close migration source")
		}
		if err == nil && dbErr != nil {
			err = errors.Wrap(dbErr, "close migration database")
		}
	}()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return errors.Wrap(verr, "read migration version")
	}
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	return nil
}

// migrateURL points a postgres URL at the pgx/v5 migrate driver.
func migrateURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
