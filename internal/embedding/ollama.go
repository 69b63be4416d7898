package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
)

// DefaultOllamaURL is used when base_url is empty
const DefaultOllamaURL = "http://localhost:11434"

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// OllamaProvider embeds through a local Ollama server's /api/embed
type OllamaProvider struct {
	client    *resty.Client
	model     string
	dimension *dimension
	logger    *logging.Logger
}

func newOllamaProvider(cfg config.EmbeddingConfig, dim int, timeout time.Duration, logger *logging.Logger) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OllamaProvider{
		client:    client,
		model:     cfg.Model,
		dimension: &dimension{configured: dim},
		logger:    logger,
	}
}

// Embed sends all texts in a single request
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var (
		result  ollamaEmbedResponse
		failure ollamaError
	)

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(ollamaEmbedRequest{Model: p.model, Input: texts}).
		SetResult(&result).
		SetError(&failure).
		Post("/api/embed")
	if err == nil && resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.String()
		}

		err = fmt.Errorf("embed API returned %d: %s", resp.StatusCode(), msg)
	}

	monitor.ObserveEmbedding(ProviderOllama, len(texts), err)

	if err != nil {
		return nil, errors.NewProviderError(ProviderOllama, err)
	}

	if err := checkCount(ProviderOllama, texts, result.Embeddings); err != nil {
		return nil, err
	}

	p.dimension.record(result.Embeddings)
	p.logger.WithField("texts", len(texts)).Debug("embedded batch")

	return result.Embeddings, nil
}

// EmbedSingle embeds one text
func (p *OllamaProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (p *OllamaProvider) Dimension() int { return p.dimension.value() }

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) Model() string { return p.model }
