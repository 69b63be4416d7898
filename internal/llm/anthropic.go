package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicVersion    = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type anthropicCompleter struct {
	client    *resty.Client
	model     string
	maxTokens int
	temp      float64
}

func newAnthropicCompleter(cfg config.LLMConfig, timeout time.Duration) (*anthropicCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError("API key is required for Anthropic provider", "llm.api_key").
			WithSuggestion("Set ASKDB_LLM_API_KEY or ANTHROPIC_API_KEY")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion)

	return &anthropicCompleter{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		temp:      cfg.Temperature,
	}, nil
}

func (c *anthropicCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var (
		result  anthropicResponse
		failure anthropicErrorResponse
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(anthropicRequest{
			Model:       c.model,
			System:      systemPrompt,
			MaxTokens:   c.maxTokens,
			Temperature: c.temp,
			Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/messages")
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}

	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.String()
		}

		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode(), msg)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no response from Anthropic")
	}

	return sb.String(), nil
}

func (c *anthropicCompleter) Name() string { return ProviderAnthropic }

func (c *anthropicCompleter) Model() string { return c.model }
