// Package llm builds the generation and embedding providers named in the config.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
)

// Generator is an LLM provider that owns a client connection.
type Generator interface {
	core.LLMProvider
	Close() error
}

// Embedder is an embedding provider that owns a client connection.
type Embedder interface {
	core.EmbeddingProvider
	Close() error
}

// NewGenerator creates a generation provider for modelName using cfg.LLMProvider.
func NewGenerator(ctx context.Context, cfg *config.Config, modelName string) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := NewGeminiLLM(ctx, cfg.AIAPIKey, modelName)
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return g, nil

	case config.ProviderOpenAI:
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return NewLangchainLLM(model, modelName), nil

	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return NewLangchainLLM(model, modelName), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// NewEmbedder creates the embedding provider selected by cfg.EmbedProvider.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var client embeddings.EmbedderClient

	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		g, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("create gemini embedder: %w", err)
		}
		return g, nil

	case config.ProviderOpenAI:
		m, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		client = m

	case config.ProviderOllama:
		m, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = m

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}
	return NewLangchainEmbedder(e), nil
}
