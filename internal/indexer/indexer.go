// Package indexer keeps the schema index in step with the live database and
// answers relevant-table lookups against it.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/database"
	"github.com/kyleking/askdb/internal/embedding"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
	"github.com/kyleking/askdb/internal/storage"
	"github.com/kyleking/askdb/internal/types"
	"github.com/kyleking/askdb/internal/workpool"
)

const (
	// DefaultBatchSize bounds the number of texts per embedding request
	DefaultBatchSize = 20
	// DefaultTopK is the number of tables returned by relevance search
	DefaultTopK = 5

	StatusSuccess = "success"
)

// Config tunes an Indexer
type Config struct {
	BatchSize    int
	TopK         int
	Descriptions map[string]string
	// ModelName sizes vectors when no embedding provider is attached
	ModelName string
	// Workers bounds concurrent column reads; zero uses the pool default
	Workers int
	Logger  *logging.Logger
}

// Options selects what one Index call covers
type Options struct {
	// Tables limits the run; empty means every table the source lists
	Tables []string
	// Force re-embeds tables whose content hash is unchanged
	Force bool
	// Progress, when set, is called after each batch
	Progress func(done, total int)
}

// Result summarizes one index run
type Result struct {
	RunID       string        `json:"run_id,omitempty"`
	Status      string        `json:"status"`
	TablesCount int           `json:"tables_count"`
	Indexed     int           `json:"indexed"`
	Skipped     int           `json:"skipped"`
	Errors      []string      `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Indexer builds the schema index from a metadata source and an embedding
// provider. Either may be nil; Index then fails and relevance search reports
// itself unavailable.
type Indexer struct {
	store    storage.VectorStore
	embedder embedding.Provider
	source   database.MetadataSource
	cfg      Config
	pool     *workpool.Pool
	logger   *logging.Logger
}

// New creates an Indexer
func New(store storage.VectorStore, embedder embedding.Provider, source database.MetadataSource, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Indexer{
		store:    store,
		embedder: embedder,
		source:   source,
		cfg:      cfg,
		pool:     workpool.New(cfg.Workers),
		logger:   logger.WithField("component", "indexer"),
	}
}

// Dimension is the provider's vector length, or the model lookup without one
func (ix *Indexer) Dimension() int {
	if ix.embedder != nil && ix.embedder.Dimension() > 0 {
		return ix.embedder.Dimension()
	}

	return embedding.DimensionForModel(ix.cfg.ModelName)
}

type pendingTable struct {
	name    string
	compact string
	desc    string
	hash    string
}

// Index embeds every new or changed table in opts' working set. Batch
// failures are collected in Result.Errors and do not stop the run; only
// missing collaborators, an index built at another dimension, or a failed
// table listing return an error.
func (ix *Indexer) Index(ctx context.Context, opts Options) (*Result, error) {
	if ix.embedder == nil {
		return nil, errors.NewConfigError("no embedding provider configured", "embedding.provider").
			WithSuggestion("Set embedding.provider to openai or ollama")
	}

	if ix.source == nil {
		return nil, errors.NewConfigError("no metadata source configured", "database.dsn")
	}

	start := time.Now()

	tables := opts.Tables
	if len(tables) == 0 {
		listed, err := ix.source.ListTables(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to list tables for indexing")
		}

		tables = listed
	}

	result := &Result{Status: StatusSuccess}

	if len(tables) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	result.RunID = uuid.NewString()
	logger := ix.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"tables": len(tables),
		"force":  opts.Force,
	})
	logger.Info("index run started")

	// Vectors written by this run must match the length already on disk.
	dim := ix.recordedDimension(ctx)
	failedBatches := 0

	for startIdx := 0; startIdx < len(tables); startIdx += ix.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(startIdx+ix.cfg.BatchSize, len(tables))
		batch := tables[startIdx:end]

		indexed, skipped, batchDim, err := ix.indexBatch(ctx, batch, opts.Force, dim)
		if errors.IsType(err, errors.ErrTypeConfig) {
			return nil, err
		}

		result.Indexed += indexed
		result.Skipped += skipped

		if batchDim > 0 {
			dim = batchDim
		}

		if err != nil {
			failedBatches++
			msg := fmt.Sprintf("batch %d-%d: %v", startIdx+1, end, err)
			result.Errors = append(result.Errors, msg)
			logger.WithError(err).WithField("batch_start", startIdx+1).Warn("index batch failed")
		}

		if opts.Progress != nil {
			opts.Progress(end, len(tables))
		}
	}

	if dim == 0 {
		dim = ix.Dimension()
	}

	result.TablesCount = result.Indexed + result.Skipped

	err := ix.store.RecordStatus(ctx, storage.IndexStatus{
		TablesCount: result.TablesCount,
		Dimension:   dim,
		ModelName:   ix.embedder.Model(),
		RunID:       result.RunID,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("record status: %v", err))
		logger.WithError(err).Warn("failed to record index status")
	}

	monitor.ObserveIndexRun(result.Indexed, result.Skipped, failedBatches)

	result.Duration = time.Since(start)
	logger.WithFields(map[string]interface{}{
		"indexed":  result.Indexed,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
		"duration": result.Duration.String(),
	}).Info("index run finished")

	return result, nil
}

// recordedDimension is the vector length stored in a non-empty index, or 0
func (ix *Indexer) recordedDimension(ctx context.Context) int {
	status, ok := ix.store.Status(ctx)
	if !ok || status.Dimension == 0 || !ix.store.HasData(ctx) {
		return 0
	}

	return status.Dimension
}

// dimensionError refuses to mix vector lengths inside one index file
func (ix *Indexer) dimensionError(ctx context.Context, want, got int) error {
	model := ix.embedder.Model()
	if status, ok := ix.store.Status(ctx); ok && status.ModelName != "" {
		model = status.ModelName
	}

	return errors.NewConfigError(
		fmt.Sprintf("index was built with %d-dimensional embeddings (%s), provider produces %d",
			want, model, got),
		"embedding.model",
	).WithSuggestion("Run 'askdb clear' and re-index after changing the embedding model")
}

// indexBatch handles one slice of table names: skip unchanged tables, embed
// the rest in one call, write them in one transaction. A non-zero wantDim
// rejects vectors of any other length before anything is written.
func (ix *Indexer) indexBatch(ctx context.Context, names []string, force bool, wantDim int) (indexed, skipped, dim int, err error) {
	var pending []pendingTable

	var columnErrs []string

	columns := workpool.Map(ctx, ix.pool, names, ix.source.Columns)

	for i, name := range names {
		if columns[i].Err != nil {
			columnErrs = append(columnErrs, fmt.Sprintf("%s: %v", name, columns[i].Err))
			continue
		}

		compact := formatter.CompactSchema(types.Table{Name: name, Columns: columns[i].Data})
		if compact == "" {
			ix.logger.WithField("table", name).Debug("skipping table without columns")
			continue
		}

		hash := formatter.ContentHash(compact)

		if !force {
			if stored, ok := ix.store.GetHash(ctx, name); ok && stored == hash {
				skipped++
				continue
			}
		}

		pending = append(pending, pendingTable{
			name:    name,
			compact: compact,
			desc:    config.LookupDescription(ix.cfg.Descriptions, name),
			hash:    hash,
		})
	}

	if len(columnErrs) > 0 {
		err = fmt.Errorf("failed to read columns: %v", columnErrs)
	}

	if len(pending) == 0 {
		return 0, skipped, 0, err
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = formatter.EmbeddingText(p.compact, p.desc)
	}

	vectors, embedErr := ix.embedder.Embed(ctx, texts)
	if embedErr != nil {
		return 0, skipped, 0, embedErr
	}

	if len(vectors) != len(pending) {
		return 0, skipped, 0, errors.NewProviderError(ix.embedder.Name(),
			fmt.Errorf("expected %d embeddings, got %d", len(pending), len(vectors)))
	}

	if got := len(vectors[0]); wantDim > 0 && got != wantDim {
		return 0, skipped, 0, ix.dimensionError(ctx, wantDim, got)
	}

	records := make([]storage.TableRecord, len(pending))
	for i, p := range pending {
		records[i] = storage.TableRecord{
			TableName:     p.name,
			CompactSchema: p.compact,
			Description:   p.desc,
			ContentHash:   p.hash,
			Embedding:     vectors[i],
		}
	}

	if writeErr := ix.store.UpsertBatch(ctx, records); writeErr != nil {
		return 0, skipped, 0, writeErr
	}

	return len(records), skipped, len(vectors[0]), err
}
