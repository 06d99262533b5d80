// Package storage selects the sample store backend from a database URL.
package storage

import (
	"context"
	"fmt"
	"strings"

	"cpumon/internal/domain"
	"cpumon/internal/logger"
	"cpumon/internal/storage/postgres"
	"cpumon/internal/storage/sqlite"

	"github.com/golang-migrate/migrate/v4"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Parse returns the backend for databaseURL and the location it points to.
// For sqlite the location is a file path, for postgres the URL itself.
//
//	sqlite://data/cpumon.db, sqlite3://..., file:data/cpumon.db -> sqlite
//	postgres://..., postgresql://...                             -> postgres
func Parse(databaseURL string) (Driver, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres, databaseURL, nil
	}

	for _, prefix := range []string{"sqlite3://", "sqlite://", "file:"} {
		if path, ok := strings.CutPrefix(databaseURL, prefix); ok {
			if path == "" {
				return "", "", fmt.Errorf("database url %q has no path", databaseURL)
			}
			return DriverSQLite, path, nil
		}
	}

	return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
}

// Open connects to the backend named by databaseURL. The caller owns the
// returned repository and must Close it.
func Open(ctx context.Context, databaseURL string, log logger.Logger) (domain.SampleRepository, error) {
	driver, location, err := Parse(databaseURL)
	if err != nil {
		return nil, err
	}

	switch driver {
	case DriverPostgres:
		pool, err := postgres.InitDB(ctx, location, log)
		if err != nil {
			return nil, domain.NewStorageError("open", err)
		}
		return postgres.NewSampleRepository(pool, location), nil
	default:
		db, err := sqlite.NewSqliteDB(location, log)
		if err != nil {
			return nil, domain.NewStorageError("open", err)
		}
		return sqlite.NewSampleRepository(db, location), nil
	}
}

func NewMigrate(databaseURL string) (*migrate.Migrate, error) {
	driver, location, err := Parse(databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == DriverPostgres {
		return postgres.NewMigrate(location)
	}
	return sqlite.NewMigrate(location)
}
