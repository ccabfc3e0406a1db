// Package anthropic registers the Anthropic messages API provider.
package anthropic

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/Strob0t/CodeTutor/internal/adapter/langchain"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/secrets"
)

const (
	providerName = "anthropic"
	defaultModel = "claude-3-5-haiku-latest"
)

func init() {
	llm.Register(llm.Provider{
		Name:      providerName,
		SecretKey: secrets.AnthropicAPIKey,
		New:       New,
	})
}

// New builds a TextCompleter for cfg.
func New(cfg llm.ProviderConfig) (llm.TextCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	opts := []anthropic.Option{
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return langchain.New(providerName, m), nil
}
