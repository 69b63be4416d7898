package cmd

import (
	"context"
	"time"

	"github.com/kyleking/askdb/internal/cache"
	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/database"
	"github.com/kyleking/askdb/internal/embedding"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/indexer"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/query"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/storage"
)

// app holds the components a command needs. db, source and schemas are nil
// for commands that never touch the target database.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *storage.Store
	embedder embedding.Provider
	// embedderErr explains a nil embedder when the provider is misconfigured
	embedderErr error
	indexer     *indexer.Indexer
	db          *database.DB
	source      *schema.FilteredSource
	schemas     *schema.Manager
	cache       *cache.FileCache
}

// newIndexApp wires only the schema index. A misconfigured embedding
// provider is not fatal here: status and clear work without one.
func newIndexApp(cfg *config.Config) (*app, error) {
	logger := logging.GetLogger()

	embedder, err := embedding.NewProvider(cfg.Embedding, logger)
	if err != nil {
		logger.WithError(err).Debug("embedding provider unavailable")
	}

	store := storage.NewStoreFromConfig(cfg.Index, logger)

	a := &app{cfg: cfg, logger: logger, store: store, embedder: embedder, embedderErr: err}
	a.indexer = indexer.New(store, embedder, nil, a.indexerConfig())

	return a, nil
}

// newApp wires the index and the target database
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newIndexApp(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database, a.logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.db = db
	a.attachSource(database.NewIntrospector(db))

	return a, nil
}

// attachSource filters src through the schema settings and rebuilds the
// indexer and manager on top of it
func (a *app) attachSource(src database.MetadataSource) {
	var tableCache schema.TableCache

	if a.cfg.Schema.CacheTTL > 0 {
		fc, err := a.openCache()
		if err != nil {
			a.logger.WithError(err).Warn("table cache unavailable")
		} else {
			a.cache = fc
			tableCache = fc
		}
	}

	a.source = schema.NewFilteredSource(src, schema.FromConfig(a.cfg.Schema), tableCache, a.logger)
	a.indexer = indexer.New(a.store, a.embedder, a.source, a.indexerConfig())

	// Without a provider the index cannot be searched.
	var retriever schema.Retriever
	if a.embedder != nil {
		retriever = a.indexer
	}

	a.schemas = schema.NewManager(a.source, retriever, a.cfg.Index.TopK, a.logger)
}

// openCache opens the table-list cache. Callers own the returned cache.
func (a *app) openCache() (*cache.FileCache, error) {
	return cache.NewFileCache(
		a.cfg.Cache.Directory,
		a.cfg.Cache.MaxSizeMB,
		a.cfg.Schema.CacheTTLDuration(),
		config.ParseDurationOr(a.cfg.Cache.CleanupFreq, time.Hour),
	)
}

func (a *app) indexerConfig() indexer.Config {
	modelName := a.cfg.Embedding.Model
	if a.embedder != nil {
		modelName = a.embedder.Model()
	}

	return indexer.Config{
		BatchSize:    a.cfg.Index.BatchSize,
		TopK:         a.cfg.Index.TopK,
		Descriptions: a.cfg.Schema.Descriptions,
		ModelName:    modelName,
		Logger:       a.logger,
	}
}

// engine builds the ask pipeline
func (a *app) engine() (*query.Engine, error) {
	if a.schemas == nil {
		return nil, errors.New(errors.ErrTypeInternal, "no target database is attached")
	}

	completer, err := llm.NewCompleter(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}

	opts := query.Options{
		Dialect:  a.db.Dialect(),
		RowLimit: a.cfg.Database.RowLimit,
		Logger:   a.logger,
		Runner:   database.NewExecutor(a.db, config.ParseDurationOr(a.cfg.Database.QueryTimeout, 30*time.Second), a.logger),
	}

	return query.NewEngine(a.schemas, completer, query.NewGuard(a.cfg.Guard), opts), nil
}

// Close releases the database, index file and cache
func (a *app) Close() error {
	var firstErr error

	if a.cache != nil {
		if err := a.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
