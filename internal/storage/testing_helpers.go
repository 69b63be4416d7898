package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kyleking/askdb/internal/logging"
)

// NewTestStore creates an opened store in a temporary directory with
// auto-cleanup. Acceleration is disabled so ranking is deterministic.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.duckdb")

	store, err := Open(context.Background(), path, Options{
		DisableAcceleration: true,
		Logger:              logging.Nop(),
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	return store
}

// NewTestStoreWithData creates a test store pre-seeded with records
func NewTestStoreWithData(t *testing.T, records []TableRecord) *Store {
	t.Helper()

	store := NewTestStore(t)
	if err := store.UpsertBatch(context.Background(), records); err != nil {
		t.Fatalf("failed to seed test store: %v", err)
	}

	return store
}
