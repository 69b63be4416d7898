package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/kyleking/askdb/internal/logging"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("duckdb", filepath.Join(t.TempDir(), "migrations.duckdb"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}

func TestMigrateUpCreatesTables(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	if err := NewMigrationManager(db, logging.Nop()).MigrateUp(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	for _, table := range []string{"table_metadata", "table_embeddings", "index_status", "schema_migrations"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Table %s not created: %v", table, err)
		}
	}

	var columnCount int

	err := db.QueryRow(`
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = 'index_status' AND column_name = 'run_id'
	`).Scan(&columnCount)
	if err != nil {
		t.Fatalf("Failed to check schema columns: %v", err)
	}

	if columnCount != 1 {
		t.Errorf("Expected run_id column, got %d", columnCount)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	manager := NewMigrationManager(db, logging.Nop())

	for i := 0; i < 3; i++ {
		if err := manager.MigrateUp(ctx); err != nil {
			t.Fatalf("Migration pass %d failed: %v", i, err)
		}
	}

	versions, err := manager.GetAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}

	if len(versions) != len(manager.GetMigrations()) {
		t.Errorf("Expected %d applied migrations, got %v", len(manager.GetMigrations()), versions)
	}
}

func TestMigrationStatusAndRollback(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	manager := NewMigrationManager(db, logging.Nop())

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}

	for version, s := range status {
		if s.Applied {
			t.Errorf("Migration %d reported applied before MigrateUp", version)
		}
	}

	if err := manager.MigrateUp(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	if err := manager.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}

	status, err = manager.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}

	if !status[1].Applied || status[2].Applied {
		t.Errorf("Expected only migration 1 applied, got %+v", status)
	}
}
