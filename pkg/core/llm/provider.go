// Package llm abstracts the AI services used for structured extraction.
package llm

import "context"

// Provider is the interface for all LLM providers.
type Provider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	// Name identifies the provider in logs and cache metadata.
	Name() string
}
