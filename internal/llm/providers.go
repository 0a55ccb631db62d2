package llm

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

// ProviderConfig selects and parameterizes a chat model backend.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewModel builds the langchaingo model for the configured provider.
func NewModel(p ProviderConfig) (llms.Model, error) {
	switch p.Provider {
	case ProviderGroq:
		baseURL := groqBaseURL
		if p.BaseURL != "" {
			baseURL = p.BaseURL
		}
		return newOpenAICompatible(p, baseURL)
	case ProviderOpenAI:
		return newOpenAICompatible(p, p.BaseURL)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating ollama model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p.Provider)
	}
}

func newOpenAICompatible(p ProviderConfig, baseURL string) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(p.Model)}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s model: %w", p.Provider, err)
	}
	return m, nil
}
