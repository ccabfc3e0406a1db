// Package langchain adapts langchaingo chat models to the llm.TextCompleter
// port. Provider packages construct the model and register a factory.
package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/Strob0t/CodeTutor/internal/port/llm"
)

// Completer sends a system and a user message to a chat model.
type Completer struct {
	model llms.Model
	name  string
}

// New wraps model. name is used in error messages.
func New(name string, model llms.Model) *Completer {
	return &Completer{model: model, name: name}
}

// Complete implements llm.TextCompleter.
func (c *Completer) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	var messages []llms.MessageContent
	if opts.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, opts.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: generate: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.name, errNoChoices)
	}
	return resp.Choices[0].Content, nil
}

var errNoChoices = errors.New("no response choices")
