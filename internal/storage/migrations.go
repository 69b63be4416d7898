package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kyleking/askdb/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles index file schema migrations
type MigrationManager struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, logger *logging.Logger) *MigrationManager {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &MigrationManager{db: db, logger: logger}
}

// GetMigrations returns all available migrations in order.
// Tables carry no PRIMARY KEY: rows are replaced with DELETE then INSERT inside
// one transaction, which DuckDB rejects as a duplicate key when a unique
// constraint is present.
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Schema index tables",
			Up: `
				CREATE TABLE IF NOT EXISTS table_metadata (
					table_name VARCHAR NOT NULL,
					compact_schema TEXT NOT NULL,
					description TEXT,
					content_hash VARCHAR NOT NULL,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS table_embeddings (
					table_name VARCHAR NOT NULL,
					embedding TEXT NOT NULL,
					dimension INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS index_status (
					tables_count INTEGER NOT NULL,
					dimension INTEGER NOT NULL,
					model_name VARCHAR NOT NULL,
					last_updated TIMESTAMP NOT NULL
				);
			`,
			Down: `
				DROP TABLE IF EXISTS index_status;
				DROP TABLE IF EXISTS table_embeddings;
				DROP TABLE IF EXISTS table_metadata;
			`,
		},
		{
			Version:     2,
			Description: "Record index run id",
			Up:          `ALTER TABLE index_status ADD COLUMN run_id VARCHAR;`,
			Down:        `ALTER TABLE index_status DROP COLUMN run_id;`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER NOT NULL,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func (m *MigrationManager) appliedSet(ctx context.Context) (map[int]bool, error) {
	versions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	return applied, nil
}

// run executes a migration body and its bookkeeping statement in one transaction
func (m *MigrationManager) run(ctx context.Context, body, record string, version int, args ...interface{}) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return err
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		m.logger.WithField("version", migration.Version).Debugf("Applying migration: %s", migration.Description)

		err := m.run(ctx, migration.Up,
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			migration.Version, migration.Version, migration.Description)
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations above targetVersion, newest first
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	versions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		byVersion[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for _, version := range versions {
		if version <= targetVersion {
			break
		}

		migration, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("migration %d not found", version)
		}

		m.logger.WithField("version", version).Debugf("Rolling back migration: %s", migration.Description)

		err := m.run(ctx, migration.Down,
			"DELETE FROM schema_migrations WHERE version = ?", version, version)
		if err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
}

// GetMigrationStatus returns the current migration status keyed by version
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) (map[int]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	status := make(map[int]MigrationStatus)
	for _, migration := range m.GetMigrations() {
		status[migration.Version] = MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		}
	}

	return status, nil
}
