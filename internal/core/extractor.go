package core

import (
	"context"

	"github.com/markdave123-py/docqa/internal/models"
)

// TextExtractor converts a raw source into normalized plain text.
type TextExtractor interface {
	Extract(ctx context.Context, ref models.SourceRef) (string, error)
}

// TextChunker splits normalized text into ordered, overlapping segments.
type TextChunker interface {
	Chunk(text string) ([]string, error)
}
