package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kyleking/askdb/internal/config"
)

const defaultOllamaURL = "http://localhost:11434"

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaCompleter struct {
	client    *resty.Client
	model     string
	maxTokens int
	temp      float64
}

func newOllamaCompleter(cfg config.LLMConfig, timeout time.Duration) *ollamaCompleter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &ollamaCompleter{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
	}
}

func (c *ollamaCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var result ollamaChatResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{
			Model: c.model,
			Messages: []ollamaMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Options: ollamaOptions{Temperature: c.temp, NumPredict: c.maxTokens},
		}).
		SetResult(&result).
		SetError(&result).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}

	if resp.IsError() || result.Error != "" {
		msg := result.Error
		if msg == "" {
			msg = resp.String()
		}

		return "", fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode(), msg)
	}

	return result.Message.Content, nil
}

func (c *ollamaCompleter) Name() string { return ProviderOllama }

func (c *ollamaCompleter) Model() string { return c.model }
