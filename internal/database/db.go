package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Open connects and pings the database. SQLite is limited to a single
// connection so writers queue instead of failing with SQLITE_BUSY.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		return db, nil
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	return db, nil
}

func dialect(driver string) (goose.Dialect, string, error) {
	switch driver {
	case DriverPostgres, DriverPgx:
		return goose.DialectPostgres, "postgres", nil
	case DriverSQLite:
		return goose.DialectSQLite3, "sqlite3", nil
	}
	return "", "", fmt.Errorf("no migrations for driver %q", driver)
}

// Migrate applies the embedded schema migrations for the connection's driver.
func Migrate(ctx context.Context, db *sqlx.DB, log *logrus.Logger) error {
	d, dir, err := dialect(db.DriverName())
	if err != nil {
		return err
	}
	fsys, err := fs.Sub(migrations, path.Join("migrations", dir))
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(d, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		log.WithFields(logrus.Fields{
			"version":  res.Source.Version,
			"duration": res.Duration,
		}).Infof("applied migration %s", res.Source.Path)
	}
	return nil
}
