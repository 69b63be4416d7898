// Package schema decides which tables the model may see and renders their
// compact schema for prompts.
package schema

import (
	"context"
	"strings"
	"time"

	"github.com/kyleking/askdb/internal/cache"
	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/database"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/types"
)

// Config is the visible-table filter
type Config struct {
	// Tables is the include list; empty means every table
	Tables       []string
	Exclude      []string
	Descriptions map[string]string
	// CacheTTL bounds how long a table listing is reused; zero disables caching
	CacheTTL time.Duration
}

// FromConfig converts the file/env configuration section
func FromConfig(cfg config.SchemaConfig) Config {
	return Config{
		Tables:       cfg.Tables,
		Exclude:      cfg.Exclude,
		Descriptions: cfg.Descriptions,
		CacheTTL:     cfg.CacheTTLDuration(),
	}
}

// TableCache stores table listings between invocations
type TableCache interface {
	GetJSON(ctx context.Context, key string, out interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// FilteredSource is a MetadataSource that only exposes visible tables
type FilteredSource struct {
	src     database.MetadataSource
	cfg     Config
	include map[string]bool
	exclude map[string]bool
	cache   TableCache
	logger  *logging.Logger
}

var _ database.MetadataSource = (*FilteredSource)(nil)

// NewFilteredSource wraps src. cache may be nil.
func NewFilteredSource(src database.MetadataSource, cfg Config, tableCache TableCache, logger *logging.Logger) *FilteredSource {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &FilteredSource{
		src:     src,
		cfg:     cfg,
		include: nameSet(cfg.Tables),
		exclude: nameSet(cfg.Exclude),
		cache:   tableCache,
		logger:  logger.WithField("component", "schema"),
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[strings.ToLower(n)] = true
		}
	}

	return set
}

// ConnectionID identifies the underlying connection
func (f *FilteredSource) ConnectionID() string {
	return f.src.ConnectionID()
}

// Description returns the configured description for table
func (f *FilteredSource) Description(table string) string {
	return config.LookupDescription(f.cfg.Descriptions, table)
}

// ListTables returns the visible tables in source order: include filter
// first, then exclude
func (f *FilteredSource) ListTables(ctx context.Context) ([]string, error) {
	all, err := f.allTables(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]string, 0, len(all))

	for _, name := range all {
		key := strings.ToLower(name)
		if len(f.include) > 0 && !f.include[key] {
			continue
		}

		if f.exclude[key] {
			continue
		}

		visible = append(visible, name)
	}

	return visible, nil
}

// IsVisible reports whether table passes both filters
func (f *FilteredSource) IsVisible(table string) bool {
	key := strings.ToLower(table)
	if len(f.include) > 0 && !f.include[key] {
		return false
	}

	return !f.exclude[key]
}

// Columns delegates to the underlying source
func (f *FilteredSource) Columns(ctx context.Context, table string) ([]types.Column, error) {
	return f.src.Columns(ctx, table)
}

// allTables lists every table, through the cache when enabled. The cache
// holds the unfiltered listing so filter changes apply immediately.
func (f *FilteredSource) allTables(ctx context.Context) ([]string, error) {
	useCache := f.cache != nil && f.cfg.CacheTTL > 0
	key := "tables:" + f.src.ConnectionID()

	if useCache {
		var cached []string

		err := f.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}

		if !errors.Is(err, cache.ErrMiss) {
			f.logger.WithError(err).Debug("table cache read failed")
		}
	}

	tables, err := f.src.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := f.cache.SetJSON(ctx, key, tables, f.cfg.CacheTTL); err != nil {
			f.logger.WithError(err).Debug("table cache write failed")
		}
	}

	return tables, nil
}
