// Package openai registers the OpenAI chat completion provider. Any
// OpenAI-compatible endpoint (OpenRouter, vLLM, LiteLLM) works through
// OPENAI_BASE_URL.
package openai

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Strob0t/CodeTutor/internal/adapter/langchain"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/secrets"
)

const (
	providerName = "openai"
	defaultModel = "gpt-4o-mini"
)

func init() {
	llm.Register(llm.Provider{
		Name:      providerName,
		SecretKey: secrets.OpenAIAPIKey,
		New:       New,
	})
}

// New builds a TextCompleter for cfg.
func New(cfg llm.ProviderConfig) (llm.TextCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return langchain.New(providerName, m), nil
}
