package storage

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Migrate applies all pending migrations. For postgres target is a
// connection URL; for sqlite it is the database file path.
func Migrate(driver, target string) (err error) {
	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return errors.Wrapf(err, "load %s migrations", driver)
	}
	var dbURL string
	switch driver {
	case DriverPostgres:
		dbURL = target
	case DriverSQLite:
		dbURL = "sqlite://" + target
	default:
		return fmt.Errorf("unsupported migration driver %q", driver)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return errors.Wrap(err, "initialize migrations")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil && srcErr != nil {
			err = srcErr
		}
		if err == nil && dbErr != nil {
			err = dbErr
		}
	}()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}
