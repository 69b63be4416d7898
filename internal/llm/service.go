package llm

import "context"

// Provider names accepted by llm.provider
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Completer turns a system and user prompt into model text
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
	Model() string
}
