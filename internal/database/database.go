package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
)

// ErrUnsupportedDriver is returned for drivers other than postgres and sqlite.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Database abstracts both PostgreSQL and SQLite connections.
// The pipeline only reads; Exec exists for fixtures and tooling.
type Database interface {
	DBPool
	Driver() DBType
	Close() error
	IsReady() bool
	HealthCheck(ctx context.Context) error
}

// DBType enumerates supported database drivers.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// NewDatabaseConnection opens the source database selected by cfg.Driver.
//
// Parameters:
//
//	ctx: Context bounding connection establishment.
//	cfg: Database configuration; for postgres DatabaseURL must be resolved.
//	logger: Logger for connection lifecycle events.
//
// Returns:
//
//	Database: The initialized connection.
//	error: ErrUnsupportedDriver or the driver's connection error.
func NewDatabaseConnection(ctx context.Context, cfg *config.DatabaseConfig, logger logging.Logger) (Database, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("database")

	switch DetectDBType(cfg.Driver) {
	case DBTypeSQLite:
		path := strings.TrimSpace(cfg.SQLitePath)
		logger.WithFields(map[string]interface{}{"path": path}).Info("Connecting to SQLite database")
		return NewSQLiteConnection(path)

	case DBTypePostgres:
		logger.WithFields(map[string]interface{}{
			"target":     config.MaskURL(cfg.DatabaseURL),
			"url_source": cfg.URLSource,
		}).Info("Connecting to PostgreSQL database")
		return NewPostgresConnection(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("%w: %q (supported: postgres, sqlite)", ErrUnsupportedDriver, cfg.Driver)
	}
}

// DetectDBType maps a driver name to its DBType. Unknown names return "".
func DetectDBType(driver string) DBType {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DBTypeSQLite
	case "", "postgres", "postgresql", "pgx":
		return DBTypePostgres
	default:
		return ""
	}
}
