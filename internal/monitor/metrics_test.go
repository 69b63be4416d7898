package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveIndexRun(t *testing.T) {
	indexedBefore := testutil.ToFloat64(indexTablesTotal.WithLabelValues("indexed"))
	skippedBefore := testutil.ToFloat64(indexTablesTotal.WithLabelValues("skipped"))
	failedBefore := testutil.ToFloat64(indexBatchFailuresTotal)

	ObserveIndexRun(3, 2, 1)
	ObserveIndexRun(0, 0, 0)

	assert.Equal(t, indexedBefore+3, testutil.ToFloat64(indexTablesTotal.WithLabelValues("indexed")))
	assert.Equal(t, skippedBefore+2, testutil.ToFloat64(indexTablesTotal.WithLabelValues("skipped")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(indexBatchFailuresTotal))
}

func TestObserveEmbedding(t *testing.T) {
	okBefore := testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("test", "ok"))
	errBefore := testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("test", "error"))
	textsBefore := testutil.ToFloat64(embeddingTextsTotal.WithLabelValues("test"))

	ObserveEmbedding("test", 4, nil)
	ObserveEmbedding("test", 4, errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("test", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("test", "error")))
	assert.Equal(t, textsBefore+4, testutil.ToFloat64(embeddingTextsTotal.WithLabelValues("test")))
}

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(guardRejectionsTotal.WithLabelValues("forbidden_table"))
	ObserveGuardRejection("forbidden_table")
	assert.Equal(t, before+1, testutil.ToFloat64(guardRejectionsTotal.WithLabelValues("forbidden_table")))

	before = testutil.ToFloat64(vectorSearchesTotal.WithLabelValues("brute_force"))
	ObserveVectorSearch(false)
	assert.Equal(t, before+1, testutil.ToFloat64(vectorSearchesTotal.WithLabelValues("brute_force")))

	before = testutil.ToFloat64(relevanceSearchesTotal.WithLabelValues("unavailable"))
	ObserveRelevance("unavailable")
	assert.Equal(t, before+1, testutil.ToFloat64(relevanceSearchesTotal.WithLabelValues("unavailable")))

	before = testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	ObserveHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
}

func TestObserveCompletion(t *testing.T) {
	ObserveCompletion("openai", 120*time.Millisecond, nil)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(llmRequestDurationSeconds, "askdb_llm_request_duration_seconds"), 1)
}
