// Package llm provides the text generation backends used for persona
// template generation. Providers are selected by config at startup; every
// failure degrades to the built-in packs, never to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Provider generates text from a prompt. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the backend for logs.
	Name() string
	// Generate sends the prompt with the given system instruction and
	// returns the raw model output.
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// ErrNoProvider is returned by the null provider; callers treat it as a
// signal to fall back to packs.
var ErrNoProvider = errors.New("no llm provider configured")

// promptTokenBudget caps input prompts. Generation prompts are small; a
// prompt this large means something upstream went wrong.
const promptTokenBudget = 8192

// New builds the provider named by cfg.Provider. "none" and the empty
// string yield the null provider.
func New(cfg Config, logger *zap.SugaredLogger) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nullProvider{}, nil
	case "ollama":
		return newOllama(cfg, logger), nil
	case "anthropic":
		return newAnthropic(cfg, logger), nil
	case "openai":
		return newOpenAI(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

type nullProvider struct{}

func (nullProvider) Name() string { return "none" }

func (nullProvider) Generate(_ context.Context, _, _ string) (string, error) {
	return "", ErrNoProvider
}

// checkPromptBudget counts prompt tokens and rejects oversized prompts
// before they reach a paid API.
func checkPromptBudget(prompt string) error {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Counting is best-effort; a missing encoding never blocks a call.
		return nil
	}
	if n := len(enc.Encode(prompt, nil, nil)); n > promptTokenBudget {
		return fmt.Errorf("prompt of %d tokens exceeds budget %d", n, promptTokenBudget)
	}
	return nil
}
