package postgres

import (
	"database/sql"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Migrate applies all pending schema migrations from the configured
// directory. Migrations run over a dedicated database/sql connection via
// the pgx stdlib driver; the pool stays untouched.
func Migrate(cfg config.DatabaseConfig, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	db, err := sql.Open("pgx", BuildDSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "open migration connection")
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "create migrator")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		version, _, _ := m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError,
			"run migrations").WithDetail("current version: " + strconv.FormatUint(uint64(version), 10))
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		logger.Warn("could not read migration version", logging.Err(err))
	}
	logger.Info("database migrations applied",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}
