package core

import "context"

// EmbeddingProvider turns texts into vectors, one per input, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider runs a single completion. systemPrompt may be empty.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
