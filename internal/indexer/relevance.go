package indexer

import (
	"context"

	"github.com/kyleking/askdb/internal/monitor"
	"github.com/kyleking/askdb/internal/storage"
)

// RelevanceReason says why a lookup did or did not produce tables
type RelevanceReason string

const (
	// RelevanceOK means the search ran; Tables may still be empty
	RelevanceOK RelevanceReason = "ok"
	// RelevanceUnavailable means no provider or no index is present
	RelevanceUnavailable RelevanceReason = "unavailable"
	// RelevanceFailed means the provider or store failed during the search
	RelevanceFailed RelevanceReason = "failed"
)

// Relevance is the outcome of a relevant-table lookup. Unavailable and
// failed lookups both carry empty Tables so callers can fall back uniformly.
type Relevance struct {
	Tables []storage.Match
	Reason RelevanceReason
	Err    error
}

// Names returns the matched table names in rank order
func (r Relevance) Names() []string {
	names := make([]string, 0, len(r.Tables))
	for _, m := range r.Tables {
		names = append(names, m.TableName)
	}

	return names
}

// FindRelevantTables ranks indexed tables by similarity to question. It
// never returns an error; see Relevance.Reason. topK <= 0 uses the
// configured default.
func (ix *Indexer) FindRelevantTables(ctx context.Context, question string, topK int) Relevance {
	if topK <= 0 {
		topK = ix.cfg.TopK
	}

	rel := ix.findRelevant(ctx, question, topK)
	monitor.ObserveRelevance(string(rel.Reason))

	if rel.Err != nil {
		ix.logger.WithError(rel.Err).Warn("relevance search failed, falling back to all tables")
	}

	return rel
}

func (ix *Indexer) findRelevant(ctx context.Context, question string, topK int) Relevance {
	if ix.embedder == nil || !ix.store.HasData(ctx) {
		return Relevance{Reason: RelevanceUnavailable}
	}

	vec, err := ix.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return Relevance{Reason: RelevanceFailed, Err: err}
	}

	matches, err := ix.store.Search(ctx, vec, topK)
	if err != nil {
		return Relevance{Reason: RelevanceFailed, Err: err}
	}

	return Relevance{Tables: matches, Reason: RelevanceOK}
}

// HasIndex reports whether the index holds any table
func (ix *Indexer) HasIndex(ctx context.Context) bool {
	return ix.store.HasData(ctx)
}

// Status returns the recorded index status; false means not indexed
func (ix *Indexer) Status(ctx context.Context) (*storage.IndexStatus, bool) {
	return ix.store.Status(ctx)
}

// IndexedTables lists indexed tables, empty when the index is unreadable
func (ix *Indexer) IndexedTables(ctx context.Context) []storage.TableInfo {
	tables, err := ix.store.ListAll(ctx)
	if err != nil {
		ix.logger.WithError(err).Warn("failed to list indexed tables")
		return nil
	}

	return tables
}

// Clear deletes the index
func (ix *Indexer) Clear() error {
	return ix.store.Clear()
}

// UsingAcceleratedSearch reports whether searches use the vss index
func (ix *Indexer) UsingAcceleratedSearch() bool {
	return ix.store.UsingAcceleratedSearch()
}
