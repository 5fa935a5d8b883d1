package ingestion_engine

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/markdave123-py/docqa/internal/core"
)

var _ core.TextChunker = (*Chunker)(nil)

// chunkSeparators go from coarse to fine: paragraph, line, sentence, word, character.
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping segments of at most Size runes with a
// recursive character splitter. Separators stay attached to the start of the
// piece that follows them, so no text is lost at a chunk boundary.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewChunker(cfg IngestConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("invalid chunking: size=%d overlap=%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return &Chunker{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators(chunkSeparators),
		textsplitter.WithKeepSeparator(true),
	)}, nil
}

func (c *Chunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	return c.splitter.SplitText(text)
}
