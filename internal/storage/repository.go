package storage

import (
	"context"
	"time"
)

// VectorStore defines the operations the indexer needs from the schema index
type VectorStore interface {
	UpsertBatch(ctx context.Context, records []TableRecord) error
	GetHash(ctx context.Context, tableName string) (string, bool)
	Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error)
	ListAll(ctx context.Context) ([]TableInfo, error)
	RecordStatus(ctx context.Context, status IndexStatus) error
	Status(ctx context.Context) (*IndexStatus, bool)
	HasData(ctx context.Context) bool
	Clear() error
	UsingAcceleratedSearch() bool
}

// TableRecord is one row to write: metadata plus its embedding
type TableRecord struct {
	TableName     string
	CompactSchema string
	Description   string
	ContentHash   string
	Embedding     []float32
}

// TableInfo is the stored metadata for one indexed table
type TableInfo struct {
	TableName     string    `json:"table_name"`
	CompactSchema string    `json:"compact_schema"`
	Description   string    `json:"description,omitempty"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Match is a similarity search hit. Score is cosine similarity in [-1, 1].
type Match struct {
	TableName     string  `json:"table_name"`
	CompactSchema string  `json:"compact_schema"`
	Description   string  `json:"description,omitempty"`
	Score         float64 `json:"score"`
}

// IndexStatus is the singleton summary written after each index pass
type IndexStatus struct {
	TablesCount int       `json:"tables_count"`
	Dimension   int       `json:"dimension"`
	ModelName   string    `json:"model_name"`
	LastUpdated time.Time `json:"last_updated"`
	RunID       string    `json:"run_id,omitempty"`
}
