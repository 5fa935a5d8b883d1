package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/markdave123-py/docqa/internal/core"
)

// LangchainLLM adapts any langchaingo model (OpenAI, Ollama, ...) to core.LLMProvider.
type LangchainLLM struct {
	model     llms.Model
	modelName string
}

func NewLangchainLLM(model llms.Model, modelName string) *LangchainLLM {
	return &LangchainLLM{model: model, modelName: modelName}
}

func (l *LangchainLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == "" {
		out, err := llms.GenerateFromSinglePrompt(ctx, l.model, userPrompt)
		if err != nil {
			return "", fmt.Errorf("generate (%s): %w", l.modelName, err)
		}
		return out, nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	resp, err := l.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system (%s): %w", l.modelName, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return resp.Choices[0].Content, nil
}

func (l *LangchainLLM) Close() error { return nil }

// LangchainEmbedder adapts a langchaingo embedder to core.EmbeddingProvider.
type LangchainEmbedder struct {
	embedder embeddings.Embedder
}

func NewLangchainEmbedder(e embeddings.Embedder) *LangchainEmbedder {
	return &LangchainEmbedder{embedder: e}
}

func (l *LangchainEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vecs), len(texts))
	}
	return vecs, nil
}

func (l *LangchainEmbedder) Close() error { return nil }

var (
	_ core.LLMProvider       = (*LangchainLLM)(nil)
	_ core.EmbeddingProvider = (*LangchainEmbedder)(nil)
)
