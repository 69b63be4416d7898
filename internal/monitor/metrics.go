package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	indexTablesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_index_tables_total",
			Help: "Tables processed by index runs, by outcome.",
		},
		[]string{"outcome"},
	)
	indexBatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_index_batch_failures_total",
			Help: "Index batches whose embedding call or store write failed.",
		},
	)
	embeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_embedding_requests_total",
			Help: "Embedding provider calls, by provider and status.",
		},
		[]string{"provider", "status"},
	)
	embeddingTextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_embedding_texts_total",
			Help: "Texts sent to the embedding provider.",
		},
		[]string{"provider"},
	)
	relevanceSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_relevance_searches_total",
			Help: "Relevant-table lookups, by outcome (ok, unavailable, failed).",
		},
		[]string{"outcome"},
	)
	vectorSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_vector_searches_total",
			Help: "Vector store searches, by execution path.",
		},
		[]string{"path"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_guard_rejections_total",
			Help: "Generated queries rejected by the guard, by violation kind.",
		},
		[]string{"kind"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_llm_request_duration_seconds",
			Help:    "Completion provider latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider", "status"},
	)
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_asks_total",
			Help: "Questions processed, by outcome.",
		},
		[]string{"outcome"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		indexTablesTotal,
		indexBatchFailuresTotal,
		embeddingRequestsTotal,
		embeddingTextsTotal,
		relevanceSearchesTotal,
		vectorSearchesTotal,
		guardRejectionsTotal,
		llmRequestDurationSeconds,
		asksTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}

// ObserveIndexRun records the per-table outcome counts of one index pass
func ObserveIndexRun(indexed, skipped, failedBatches int) {
	if indexed > 0 {
		indexTablesTotal.WithLabelValues("indexed").Add(float64(indexed))
	}

	if skipped > 0 {
		indexTablesTotal.WithLabelValues("skipped").Add(float64(skipped))
	}

	if failedBatches > 0 {
		indexBatchFailuresTotal.Add(float64(failedBatches))
	}
}

// ObserveEmbedding records one embedding provider call
func ObserveEmbedding(provider string, texts int, err error) {
	embeddingRequestsTotal.WithLabelValues(provider, statusLabel(err)).Inc()

	if err == nil && texts > 0 {
		embeddingTextsTotal.WithLabelValues(provider).Add(float64(texts))
	}
}

// ObserveRelevance records the outcome of a relevant-table lookup
func ObserveRelevance(outcome string) {
	relevanceSearchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveVectorSearch records which search path served a query
func ObserveVectorSearch(accelerated bool) {
	path := "brute_force"
	if accelerated {
		path = "accelerated"
	}

	vectorSearchesTotal.WithLabelValues(path).Inc()
}

// ObserveGuardRejection records a guard rejection of the given kind
func ObserveGuardRejection(kind string) {
	guardRejectionsTotal.WithLabelValues(kind).Inc()
}

// ObserveCompletion records completion provider latency
func ObserveCompletion(provider string, elapsed time.Duration, err error) {
	llmRequestDurationSeconds.WithLabelValues(provider, statusLabel(err)).Observe(elapsed.Seconds())
}

// ObserveAsk records the final outcome of a question
func ObserveAsk(outcome string) {
	asksTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one served HTTP request
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}
