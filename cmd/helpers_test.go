package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/database"
	"github.com/kyleking/askdb/internal/embedding"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/storage"
	"github.com/kyleking/askdb/internal/testutil"
)

const shopDDL = `
	CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);
	CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, total REAL);
	CREATE TABLE sessions (id INTEGER PRIMARY KEY, token TEXT);
	INSERT INTO users (email) VALUES ('a@example.com'), ('b@example.com'), ('c@example.com');
	INSERT INTO orders (user_id, total) VALUES (1, 10.5), (1, 3.0), (2, 7.25);`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.DSN = filepath.Join(dir, "shop.db")
	cfg.Database.MaxConnections = 1
	cfg.Database.RowLimit = 2
	cfg.Index.Path = filepath.Join(dir, "index.duckdb")
	cfg.Index.DisableAcceleration = true
	cfg.Schema.CacheTTL = 0
	cfg.Schema.Exclude = []string{"sessions"}
	cfg.Guard.ForbiddenTables = []string{"sessions"}
	cfg.Cache.Directory = filepath.Join(dir, "cache")

	return cfg
}

// newTestApp wires an app against a seeded SQLite database. embedder may be nil.
func newTestApp(t *testing.T, cfg *config.Config, embedder embedding.Provider) *app {
	t.Helper()

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database, logging.Nop())
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, shopDDL)
	require.NoError(t, err)

	a := &app{
		cfg:      cfg,
		logger:   logging.Nop(),
		store:    storage.NewStoreFromConfig(cfg.Index, logging.Nop()),
		embedder: embedder,
		db:       db,
	}
	a.attachSource(database.NewIntrospector(db))

	t.Cleanup(func() { _ = a.Close() })

	return a
}

func shopEmbedder() *testutil.MockEmbedder {
	dim := testutil.TestDimension

	return testutil.NewMockEmbedder(dim,
		testutil.WithVector("users:", testutil.UnitVector(dim, 0)),
		testutil.WithVector("orders:", testutil.UnitVector(dim, 1)),
		testutil.WithVector("spend", testutil.UnitVector(dim, 1)),
	)
}

// fakeOllama answers every chat request with reply
func fakeOllama(t *testing.T, reply string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func useOllama(cfg *config.Config, srv *httptest.Server) {
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3"
	cfg.LLM.BaseURL = srv.URL
}
