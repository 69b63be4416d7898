package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

// Provider names accepted by embedding.provider
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Provider turns text into fixed-length vectors
type Provider interface {
	// Embed returns one vector per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle embeds one text, typically a question
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length seen in the last response, or the
	// configured or model-derived length before the first call
	Dimension() int

	// Name returns the provider name for identification
	Name() string

	// Model returns the embedding model in use
	Model() string
}

// NewProvider builds the provider selected by cfg. The "none" provider
// yields (nil, nil): callers treat a nil Provider as "not configured".
func NewProvider(cfg config.EmbeddingConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	timeout := config.ParseDurationOr(cfg.Timeout, 30*time.Second)
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DimensionForModel(cfg.Model)
	}

	logger = logger.WithFields(map[string]interface{}{
		"component": "embedding",
		"provider":  cfg.Provider,
		"model":     cfg.Model,
	})

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.NewConfigError("OpenAI embedding provider requires an API key", "embedding.api_key").
				WithSuggestion("Set ASKDB_EMBEDDING_API_KEY or OPENAI_API_KEY")
		}

		return newOpenAIProvider(cfg, dim, timeout, logger), nil
	case ProviderOllama:
		return newOllamaProvider(cfg, dim, timeout, logger), nil
	case ProviderNone, "":
		return nil, nil
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported embedding provider: %s", cfg.Provider), "embedding.provider")
	}
}

// checkCount guards the one-vector-per-text contract
func checkCount(provider string, texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return errors.NewProviderError(provider,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	return nil
}

// dimension tracks the configured vector length and the one actually returned
type dimension struct {
	configured int
	observed   atomic.Int64
}

func (d *dimension) record(vectors [][]float32) {
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		d.observed.Store(int64(len(vectors[0])))
	}
}

func (d *dimension) value() int {
	if n := d.observed.Load(); n > 0 {
		return int(n)
	}

	return d.configured
}
