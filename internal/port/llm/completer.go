// Package llm defines the text-completion port and the registry of
// provider adapters behind it.
package llm

import (
	"context"
	"time"
)

// Options tune a single completion. Temperature is always sent, so zero
// requests deterministic output. MaxTokens zero leaves the provider default.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// TextCompleter is the only capability the pipeline needs from a provider.
// Implementations must honour ctx cancellation.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// ProviderConfig is what a factory needs to build a TextCompleter.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// CompleterFunc adapts a function to TextCompleter.
type CompleterFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
