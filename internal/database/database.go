// Package database connects to the target database that questions are asked
// against, lists its tables and runs validated queries.
package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	_ "github.com/mattn/go-sqlite3"     // SQLite driver

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

// Supported values of database.driver
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
)

var sqlDriverNames = map[string]string{
	DriverPostgres: "pgx",
	DriverMySQL:    "mysql",
	DriverSQLite:   "sqlite3",
	DriverDuckDB:   "duckdb",
}

var dialectNames = map[string]string{
	DriverPostgres: "PostgreSQL",
	DriverMySQL:    "MySQL",
	DriverSQLite:   "SQLite",
	DriverDuckDB:   "DuckDB",
}

// DB is an open target database handle
type DB struct {
	*sql.DB
	driver string
	id     string
}

// Open connects using cfg, applies pool settings and pings with the query timeout
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	driverName, ok := sqlDriverNames[cfg.Driver]
	if !ok {
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported database driver: %s", cfg.Driver), "database.driver")
	}

	if cfg.DSN == "" {
		return nil, errors.NewConfigError("database DSN is required", "database.dsn").
			WithSuggestion("Set ASKDB_DB_DSN or pass --dsn")
	}

	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to open %s database", cfg.Driver)
	}

	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	sqlDB.SetConnMaxLifetime(config.ParseDurationOr(cfg.ConnMaxLifetime, 30*time.Minute))

	pingCtx, cancel := context.WithTimeout(ctx, config.ParseDurationOr(cfg.QueryTimeout, 30*time.Second))
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to connect to %s database", cfg.Driver).
			WithSuggestion("Check the DSN and that the database is reachable")
	}

	db := NewFromDB(sqlDB, cfg.Driver, cfg.DSN)

	logger.WithFields(map[string]interface{}{
		"driver":        cfg.Driver,
		"connection_id": db.id,
	}).Debug("connected to target database")

	return db, nil
}

// NewFromDB wraps an already open handle
func NewFromDB(sqlDB *sql.DB, driver, dsn string) *DB {
	return &DB{DB: sqlDB, driver: driver, id: ConnectionID(driver, dsn)}
}

// ConnectionID identifies a connection without exposing credentials
func ConnectionID(driver, dsn string) string {
	sum := sha256.Sum256([]byte(dsn))
	return driver + ":" + hex.EncodeToString(sum[:8])
}

// ConnectionID returns the driver-qualified DSN hash used as a cache key
func (d *DB) ConnectionID() string {
	return d.id
}

// Driver returns the configured driver name
func (d *DB) Driver() string {
	return d.driver
}

// Dialect returns a human readable SQL dialect for prompts
func (d *DB) Dialect() string {
	if name, ok := dialectNames[d.driver]; ok {
		return name
	}

	return ""
}
