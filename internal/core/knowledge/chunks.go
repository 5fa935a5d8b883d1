// Package knowledge stores chunk texts with their embeddings and answers
// nearest-neighbour queries. Callers pass plain text; vectors are computed here.
package knowledge

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// ChunkID is the deterministic id of chunk i of a source. Reprocessing the
// same source overwrites rather than duplicates.
func ChunkID(sourceKey string, i int) string {
	return fmt.Sprintf("%s_%d", sourceKey, i)
}

// BuildChunks attaches ids and metadata to chunk texts.
func BuildChunks(sourceKey string, texts []string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{
			ID:   ChunkID(sourceKey, i),
			Text: t,
			Metadata: map[string]string{
				models.MetaSourceKey:  sourceKey,
				models.MetaChunkIndex: strconv.Itoa(i),
			},
		}
	}
	return out
}

const (
	defaultEmbedBatch = 32
	embedParallelism  = 4
)

// embedAll embeds texts in batches, a few batches at a time, keeping input order.
func embedAll(ctx context.Context, emb core.EmbeddingProvider, texts []string, batchSize, dim int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := emb.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
			}
			for i, v := range vecs {
				if dim > 0 && len(v) != dim {
					return fmt.Errorf("embedding %d has dimension %d, want %d", start+i, len(v), dim)
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedQuery embeds a single query text.
func embedQuery(ctx context.Context, emb core.EmbeddingProvider, text string, dim int) ([]float32, error) {
	vecs, err := embedAll(ctx, emb, []string{text}, 1, dim)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
