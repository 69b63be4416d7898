package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/storage"
	"github.com/kyleking/askdb/internal/testutil"
)

func newShopIndexer(t *testing.T, batchSize int) (*Indexer, *testutil.MockEmbedder, *testutil.MemorySource, *storage.Store) {
	t.Helper()

	dim := testutil.TestDimension
	embedder := testutil.NewMockEmbedder(dim,
		testutil.WithVector("users:", testutil.UnitVector(dim, 0)),
		testutil.WithVector("orders:", testutil.UnitVector(dim, 1)),
		testutil.WithVector("products:", testutil.UnitVector(dim, 2)),
		testutil.WithVector("customer accounts", testutil.UnitVector(dim, 0)),
		testutil.WithVector("purchases", testutil.UnitVector(dim, 1)),
	)
	source := testutil.NewMemorySource(testutil.SampleTables()...)
	store := storage.NewTestStore(t)

	ix := New(store, embedder, source, Config{
		BatchSize: batchSize,
		Descriptions: map[string]string{
			"users": "registered customer accounts",
		},
		Logger: logging.Nop(),
	})

	return ix, embedder, source, store
}

func TestIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ix, embedder, _, _ := newShopIndexer(t, DefaultBatchSize)

	first, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, 3, first.Indexed)
	assert.Equal(t, 0, first.Skipped)
	assert.Equal(t, 3, first.TablesCount)
	assert.Empty(t, first.Errors)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, 1, embedder.Calls(), "one embedding call per batch")

	embedder.Reset()

	second, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 3, second.TablesCount)
	assert.Equal(t, 0, embedder.Calls(), "unchanged tables must not be re-embedded")
}

func TestIndexChangeDetection(t *testing.T) {
	ctx := context.Background()
	ix, embedder, source, _ := newShopIndexer(t, DefaultBatchSize)

	_, err := ix.Index(ctx, Options{})
	require.NoError(t, err)

	source.SetTable(testutil.NewTable("orders",
		testutil.WithColumn("id", "integer"),
		testutil.WithColumn("user_id", "integer"),
		testutil.WithColumn("total", "numeric"),
		testutil.WithColumn("status", "text"),
	))
	embedder.Reset()

	result, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 2, result.Skipped)

	texts := embedder.EmbeddedTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "status(text)")
}

func TestIndexForceRebuild(t *testing.T) {
	ctx := context.Background()
	ix, embedder, _, _ := newShopIndexer(t, DefaultBatchSize)

	_, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	embedder.Reset()

	result, err := ix.Index(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, embedder.EmbeddedTexts(), 3)
}

func TestIndexBatching(t *testing.T) {
	ctx := context.Background()
	ix, embedder, _, _ := newShopIndexer(t, testutil.TestBatchSize)

	var progress []int

	result, err := ix.Index(ctx, Options{Progress: func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, 2, embedder.Calls(), "3 tables in batches of 2")
	assert.Equal(t, []int{2, 3}, progress)
}

func TestIndexDescriptionInEmbeddingText(t *testing.T) {
	ix, embedder, _, _ := newShopIndexer(t, DefaultBatchSize)

	_, err := ix.Index(context.Background(), Options{Tables: []string{"users"}})
	require.NoError(t, err)

	texts := embedder.EmbeddedTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "users: id(integer), email(text), created_at(timestamp)")
	assert.Contains(t, texts[0], "registered customer accounts")
}

func TestIndexDescriptionKeysIgnoreCase(t *testing.T) {
	embedder := testutil.NewMockEmbedder(testutil.TestDimension)
	ix := New(storage.NewTestStore(t), embedder, testutil.NewMemorySource(testutil.SampleTables()...), Config{
		Descriptions: map[string]string{"ORDERS": "customer purchases"},
		Logger:       logging.Nop(),
	})

	_, err := ix.Index(context.Background(), Options{Tables: []string{"orders"}})
	require.NoError(t, err)

	texts := embedder.EmbeddedTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "customer purchases")
}

func TestIndexRecordsStatus(t *testing.T) {
	ctx := context.Background()
	ix, _, _, _ := newShopIndexer(t, DefaultBatchSize)

	_, ok := ix.Status(ctx)
	assert.False(t, ok)
	assert.False(t, ix.HasIndex(ctx))

	result, err := ix.Index(ctx, Options{})
	require.NoError(t, err)

	status, ok := ix.Status(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, status.TablesCount)
	assert.Equal(t, testutil.TestDimension, status.Dimension)
	assert.Equal(t, "mock-embedding", status.ModelName)
	assert.Equal(t, result.RunID, status.RunID)
	assert.True(t, ix.HasIndex(ctx))

	names := make([]string, 0, 3)
	for _, tbl := range ix.IndexedTables(ctx) {
		names = append(names, tbl.TableName)
	}

	assert.Equal(t, []string{"orders", "products", "users"}, names)
}

func TestIndexEmptyWorkingSet(t *testing.T) {
	embedder := testutil.NewMockEmbedder(testutil.TestDimension)
	ix := New(storage.NewTestStore(t), embedder, testutil.NewMemorySource(), Config{Logger: logging.Nop()})

	result, err := ix.Index(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 0, result.TablesCount)
	assert.Equal(t, 0, embedder.Calls())
}

func TestIndexRequiresCollaborators(t *testing.T) {
	store := storage.NewTestStore(t)

	_, err := New(store, nil, testutil.NewMemorySource(), Config{Logger: logging.Nop()}).
		Index(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = New(store, testutil.NewMockEmbedder(2), nil, Config{Logger: logging.Nop()}).
		Index(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestIndexBatchErrorIsCapturedAndRunContinues(t *testing.T) {
	ctx := context.Background()
	ix, embedder, _, _ := newShopIndexer(t, testutil.TestBatchSize)

	embedder.SetError(fmt.Errorf("rate limited"))

	result, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 0, result.Indexed)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "rate limited")
	assert.Equal(t, 2, embedder.Calls(), "later batches still attempted")
}

func TestIndexColumnErrorIsCaptured(t *testing.T) {
	ctx := context.Background()
	ix, _, source, _ := newShopIndexer(t, DefaultBatchSize)

	source.SetError("orders", fmt.Errorf("permission denied"))

	result, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "orders")
}

func TestIndexDimensionGuard(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	source := testutil.NewMemorySource(testutil.SampleTables()...)

	_, err := New(store, testutil.NewMockEmbedder(3), source, Config{Logger: logging.Nop()}).Index(ctx, Options{})
	require.NoError(t, err)

	_, err = New(store, testutil.NewMockEmbedder(4), source, Config{Logger: logging.Nop()}).Index(ctx, Options{Force: true})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.Contains(t, err.Error(), "3-dimensional")

	status, ok := store.Status(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, status.Dimension, "rejected run leaves the index untouched")
}

func TestIndexDimensionFollowsReturnedVectors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewTestStore(t)
	source := testutil.NewMemorySource(testutil.SampleTables()...)
	embedder := testutil.NewMockEmbedder(3, testutil.WithReportedDimension(1536))
	ix := New(store, embedder, source, Config{Logger: logging.Nop()})

	first, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Indexed)

	second, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 3, second.Skipped)

	source.SetTable(testutil.NewTable("invoices", testutil.WithColumn("id", "integer")))

	third, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Indexed)

	status, ok := store.Status(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, status.Dimension)
}

func TestFindRelevantTablesRanking(t *testing.T) {
	ctx := context.Background()
	ix, _, _, _ := newShopIndexer(t, DefaultBatchSize)

	_, err := ix.Index(ctx, Options{})
	require.NoError(t, err)

	rel := ix.FindRelevantTables(ctx, "which purchases were largest", 3)
	require.Equal(t, RelevanceOK, rel.Reason)
	require.NoError(t, rel.Err)
	require.Len(t, rel.Tables, 3)

	assert.Equal(t, "orders", rel.Tables[0].TableName)
	assert.InDelta(t, 1.0, rel.Tables[0].Score, 0.01)
	assert.InDelta(t, 0.0, rel.Tables[1].Score, 0.01)
	assert.InDelta(t, 0.0, rel.Tables[2].Score, 0.01)
	assert.Equal(t, "orders", rel.Names()[0])
}

func TestFindRelevantTablesDegrades(t *testing.T) {
	ctx := context.Background()

	t.Run("no index", func(t *testing.T) {
		ix, embedder, _, _ := newShopIndexer(t, DefaultBatchSize)

		rel := ix.FindRelevantTables(ctx, "anything", 0)
		assert.Equal(t, RelevanceUnavailable, rel.Reason)
		assert.Empty(t, rel.Tables)
		assert.Equal(t, 0, embedder.Calls())
	})

	t.Run("no provider", func(t *testing.T) {
		ix := New(storage.NewTestStore(t), nil, nil, Config{Logger: logging.Nop()})

		rel := ix.FindRelevantTables(ctx, "anything", 5)
		assert.Equal(t, RelevanceUnavailable, rel.Reason)
		assert.Empty(t, rel.Tables)
	})

	t.Run("provider failure", func(t *testing.T) {
		ix, embedder, _, _ := newShopIndexer(t, DefaultBatchSize)

		_, err := ix.Index(ctx, Options{})
		require.NoError(t, err)

		embedder.SetError(fmt.Errorf("connection refused"))

		rel := ix.FindRelevantTables(ctx, "anything", 5)
		assert.Equal(t, RelevanceFailed, rel.Reason)
		assert.Error(t, rel.Err)
		assert.Empty(t, rel.Tables)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	ix, _, _, _ := newShopIndexer(t, DefaultBatchSize)

	_, err := ix.Index(ctx, Options{})
	require.NoError(t, err)
	require.True(t, ix.HasIndex(ctx))

	require.NoError(t, ix.Clear())
	assert.False(t, ix.HasIndex(ctx))
	assert.Empty(t, ix.IndexedTables(ctx))

	_, ok := ix.Status(ctx)
	assert.False(t, ok)
}

func TestDimensionFallsBackToModel(t *testing.T) {
	ix := New(storage.NewTestStore(t), nil, nil, Config{ModelName: "nomic-embed-text", Logger: logging.Nop()})
	assert.Equal(t, 768, ix.Dimension())

	ix = New(storage.NewTestStore(t), testutil.NewMockEmbedder(5), nil, Config{ModelName: "nomic-embed-text"})
	assert.Equal(t, 5, ix.Dimension())
}
