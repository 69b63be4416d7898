package embedding

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
)

// OpenAIProvider embeds through the OpenAI embeddings API or any
// compatible endpoint set via base_url
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension *dimension
	timeout   time.Duration
	logger    *logging.Logger
}

func newOpenAIProvider(cfg config.EmbeddingConfig, dim int, timeout time.Duration, logger *logging.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: &dimension{configured: dim},
		timeout:   timeout,
		logger:    logger,
	}
}

// Embed sends all texts in a single request
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	monitor.ObserveEmbedding(ProviderOpenAI, len(texts), err)

	if err != nil {
		return nil, errors.NewProviderError(ProviderOpenAI, err)
	}

	// The API tags each vector with its input position.
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			vectors = nil
			break
		}

		vectors[d.Index] = d.Embedding
	}

	if err := checkCount(ProviderOpenAI, texts, vectors); err != nil {
		return nil, err
	}

	p.dimension.record(vectors)
	p.logger.WithField("texts", len(texts)).Debug("embedded batch")

	return vectors, nil
}

// EmbedSingle embeds one text
func (p *OpenAIProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (p *OpenAIProvider) Dimension() int { return p.dimension.value() }

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) Model() string { return p.model }
