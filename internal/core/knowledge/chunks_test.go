package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docqa/internal/models"
)

// lengthEmbedder encodes len(text) in the first component of each vector.
type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
}

func (e *lengthEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func TestChunkIDIsDeterministic(t *testing.T) {
	assert.Equal(t, "https://example.com/a_0", ChunkID("https://example.com/a", 0))
	assert.Equal(t, "report.pdf_12", ChunkID("report.pdf", 12))
}

func TestBuildChunks(t *testing.T) {
	chunks := BuildChunks("src", []string{"alpha", "beta"})
	require.Len(t, chunks, 2)

	assert.Equal(t, "src_0", chunks[0].ID)
	assert.Equal(t, "alpha", chunks[0].Text)
	assert.Equal(t, "src", chunks[0].Metadata[models.MetaSourceKey])
	assert.Equal(t, "1", chunks[1].Metadata[models.MetaChunkIndex])

	assert.Empty(t, BuildChunks("src", nil))
}

func TestEmbedAllKeepsOrderAcrossBatches(t *testing.T) {
	emb := &lengthEmbedder{dim: 2}
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0)
	}

	vecs, err := embedAll(context.Background(), emb, texts, 3, 2)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, 4, emb.calls)
}

func TestEmbedAllRejectsWrongDimension(t *testing.T) {
	emb := &lengthEmbedder{dim: 3}
	_, err := embedAll(context.Background(), emb, []string{"a"}, 8, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 3, want 2")
}

func TestEmbedAllPropagatesProviderError(t *testing.T) {
	emb := &lengthEmbedder{dim: 2, err: errors.New("quota exceeded")}
	_, err := embedAll(context.Background(), emb, []string{"a", "b"}, 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStaleExpr(t *testing.T) {
	assert.Equal(t, `source_key == "a\"b" && chunk_index >= 4`, staleExpr(`a"b`, 4))
}

func TestParseSearchResult(t *testing.T) {
	sr := mclient.SearchResult{
		ResultCount: 3,
		IDs:         entity.NewColumnVarChar("id", []string{"a_0", "b_1", "c_0"}),
		Scores:      []float32{0.91, 0.55, 0.12},
		Fields: mclient.ResultSet{
			entity.NewColumnVarChar("source_key", []string{"a", "b", "c"}),
			entity.NewColumnVarChar("content", []string{"first", "second", "third"}),
			entity.NewColumnJSONBytes("metadata", [][]byte{
				[]byte(`{"source_key":"a","chunk_index":"0"}`),
				[]byte(`{"source_key":"b","chunk_index":"1"}`),
				[]byte(`{"source_key":"c","chunk_index":"0"}`),
			}),
		},
	}

	hits, err := parseSearchResult(sr, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2, "hit below the score floor is dropped")

	assert.Equal(t, "first", hits[0].Text)
	assert.Equal(t, "a", hits[0].SourceKey())
	assert.Equal(t, "1", hits[1].Metadata[models.MetaChunkIndex])
	assert.InDelta(t, 0.91, hits[0].Score, 1e-6)
}
