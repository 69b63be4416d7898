package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/monitor"
)

// NewCompleter builds the completion backend selected by cfg.Provider
func NewCompleter(cfg config.LLMConfig, logger *logging.Logger) (Completer, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	if cfg.Model == "" {
		return nil, errors.NewConfigError("model is required", "llm.model")
	}

	timeout := config.ParseDurationOr(cfg.Timeout, 60*time.Second)

	var (
		inner Completer
		err   error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		inner, err = newOpenAICompleter(cfg, timeout)
	case ProviderAnthropic:
		inner, err = newAnthropicCompleter(cfg, timeout)
	case ProviderOllama:
		inner = newOllamaCompleter(cfg, timeout)
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unsupported LLM provider: %s", cfg.Provider), "llm.provider")
	}

	if err != nil {
		return nil, err
	}

	return &instrumented{
		Completer: inner,
		logger: logger.WithFields(map[string]interface{}{
			"component": "llm",
			"provider":  inner.Name(),
			"model":     inner.Model(),
		}),
	}, nil
}

// instrumented records latency and wraps failures as provider errors
type instrumented struct {
	Completer
	logger *logging.Logger
}

func (c *instrumented) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	text, err := c.Completer.Complete(ctx, systemPrompt, userPrompt)
	elapsed := time.Since(start)

	monitor.ObserveCompletion(c.Name(), elapsed, err)

	if err != nil {
		c.logger.WithError(err).WithField("elapsed", elapsed.String()).Warn("completion failed")
		return "", errors.NewProviderError(c.Name(), err)
	}

	c.logger.WithField("elapsed", elapsed.String()).Debug("completion finished")

	return text, nil
}
