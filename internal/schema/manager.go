package schema

import (
	"context"
	"strings"

	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/indexer"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/types"
	"github.com/kyleking/askdb/internal/workpool"
)

// Retrieval modes
const (
	ModeSmart   = "smart"
	ModeCompact = "compact"
)

// How a Selection's tables were chosen
const (
	SourceExplicit = "explicit"
	SourceRelevant = "relevant"
	SourceAll      = "all"
)

// Retriever is the part of the indexer the manager uses
type Retriever interface {
	HasIndex(ctx context.Context) bool
	FindRelevantTables(ctx context.Context, question string, topK int) indexer.Relevance
}

// Selection is the schema chosen for one question
type Selection struct {
	Schema    string             `json:"schema"`
	Tables    []string           `json:"tables"`
	Source    string             `json:"source"`
	Relevance *indexer.Relevance `json:"-"`
}

// Manager renders schema context for prompts
type Manager struct {
	source    *FilteredSource
	retriever Retriever
	topK      int
	pool      *workpool.Pool
	logger    *logging.Logger
}

// NewManager creates a manager. retriever may be nil, which pins the
// manager to compact mode.
func NewManager(source *FilteredSource, retriever Retriever, topK int, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Manager{
		source:    source,
		retriever: retriever,
		topK:      topK,
		pool:      workpool.New(workpool.DefaultWorkers),
		logger:    logger.WithField("component", "schema_manager"),
	}
}

// Tables returns the visible tables
func (m *Manager) Tables(ctx context.Context) ([]string, error) {
	return m.source.ListTables(ctx)
}

// CompactSchema renders one line per table in input order. Tables whose
// columns cannot be read, or that have none, are left out.
func (m *Manager) CompactSchema(ctx context.Context, tables []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	columns := workpool.Map(ctx, m.pool, tables, m.source.Columns)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	lines := make([]string, 0, len(tables))

	for i, name := range tables {
		if columns[i].Err != nil {
			m.logger.WithError(columns[i].Err).WithField("table", name).Debug("skipping table with unreadable columns")
			continue
		}

		line := formatter.CompactLine(types.Table{
			Name:        name,
			Columns:     columns[i].Data,
			Description: m.source.Description(name),
		})
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n"), nil
}

// SchemaForQuestion returns the schema text for question
func (m *Manager) SchemaForQuestion(ctx context.Context, question string, explicitTables []string) (string, error) {
	sel, err := m.Select(ctx, question, explicitTables)
	if err != nil {
		return "", err
	}

	return sel.Schema, nil
}

// Select picks tables for question: explicit tables as given, else the
// index's relevant tables, else every visible table.
func (m *Manager) Select(ctx context.Context, question string, explicitTables []string) (*Selection, error) {
	if len(explicitTables) > 0 {
		return m.render(ctx, explicitTables, SourceExplicit, nil)
	}

	// FindRelevantTables reports an empty or missing index as unavailable.
	if m.retriever != nil {
		rel := m.retriever.FindRelevantTables(ctx, question, m.topK)

		// Tables indexed before a filter change must not leak into prompts.
		var relevant []string
		for _, name := range rel.Names() {
			if m.source.IsVisible(name) {
				relevant = append(relevant, name)
			}
		}

		if len(relevant) > 0 {
			return m.render(ctx, relevant, SourceRelevant, &rel)
		}

		m.logger.WithField("reason", string(rel.Reason)).Debug("no relevant tables, using all visible tables")
	}

	visible, err := m.source.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	return m.render(ctx, visible, SourceAll, nil)
}

func (m *Manager) render(ctx context.Context, tables []string, source string, rel *indexer.Relevance) (*Selection, error) {
	text, err := m.CompactSchema(ctx, tables)
	if err != nil {
		return nil, err
	}

	return &Selection{Schema: text, Tables: tables, Source: source, Relevance: rel}, nil
}

// Mode is smart when an index is available, compact otherwise
func (m *Manager) Mode(ctx context.Context) string {
	if m.retriever != nil && m.retriever.HasIndex(ctx) {
		return ModeSmart
	}

	return ModeCompact
}
