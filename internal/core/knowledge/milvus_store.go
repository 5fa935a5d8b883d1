package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.KnowledgeStore = (*MilvusStore)(nil)

const (
	milvusVectorField = "vector"
	maxContentLength  = 8192
)

// MilvusOptions configures a MilvusStore.
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dim        int
	// MinScore drops hits whose cosine similarity is below it (0 disables).
	MinScore  float64
	BatchSize int
}

// MilvusStore keeps chunks in a Milvus collection indexed with AUTOINDEX/COSINE.
type MilvusStore struct {
	cli         mclient.Client
	embedder    core.EmbeddingProvider
	opts        MilvusOptions
	searchParam entity.SearchParam
	log         *zap.Logger
}

// NewMilvusStore connects and creates the collection when missing.
func NewMilvusStore(ctx context.Context, emb core.EmbeddingProvider, opts MilvusOptions, log *zap.Logger) (*MilvusStore, error) {
	if emb == nil {
		return nil, errors.New("milvus store: nil embedder")
	}
	if strings.TrimSpace(opts.Collection) == "" {
		return nil, errors.New("milvus store: collection is empty")
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("milvus store: invalid dimension %d", opts.Dim)
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  opts.Address,
		Username: strings.TrimSpace(opts.Username),
		Password: strings.TrimSpace(opts.Password),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	if err := ensureMilvusCollection(ctx, cli, opts.Collection, opts.Dim); err != nil {
		_ = cli.Close()
		return nil, err
	}

	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &MilvusStore{cli: cli, embedder: emb, opts: opts, searchParam: sp, log: log}, nil
}

func ensureMilvusCollection(ctx context.Context, cli mclient.Client, collection string, dim int) error {
	exists, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: collection,
			Description:    "ingested document chunks",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "1024"},
				},
				{
					Name:       milvusVectorField,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(dim)},
				},
				{
					Name:       "source_key",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "1024"},
				},
				{
					Name:     "chunk_index",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       "content",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": strconv.Itoa(maxContentLength)},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeJSON,
				},
			},
		}
		if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return err
		}
		if err := cli.CreateIndex(ctx, collection, milvusVectorField, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := cli.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// Add upserts the chunks of a source and deletes leftovers beyond the new count.
func (s *MilvusStore) Add(ctx context.Context, sourceKey string, texts []string) error {
	chunks := BuildChunks(sourceKey, texts)

	vecs, err := embedAll(ctx, s.embedder, texts, s.opts.BatchSize, s.opts.Dim)
	if err != nil {
		return fmt.Errorf("%w: embed chunks: %w", core.ErrStorage, err)
	}

	if len(chunks) > 0 {
		ids := make([]string, 0, len(chunks))
		sourceKeys := make([]string, 0, len(chunks))
		indexes := make([]int64, 0, len(chunks))
		contents := make([]string, 0, len(chunks))
		metas := make([][]byte, 0, len(chunks))

		for i, ch := range chunks {
			meta, err := json.Marshal(ch.Metadata)
			if err != nil {
				return fmt.Errorf("%w: encode metadata: %w", core.ErrStorage, err)
			}
			ids = append(ids, ch.ID)
			sourceKeys = append(sourceKeys, sourceKey)
			indexes = append(indexes, int64(i))
			contents = append(contents, ch.Text)
			metas = append(metas, meta)
		}

		_, err = s.cli.Upsert(
			ctx,
			s.opts.Collection,
			"",
			entity.NewColumnVarChar("id", ids),
			entity.NewColumnFloatVector(milvusVectorField, s.opts.Dim, vecs),
			entity.NewColumnVarChar("source_key", sourceKeys),
			entity.NewColumnInt64("chunk_index", indexes),
			entity.NewColumnVarChar("content", contents),
			entity.NewColumnJSONBytes("metadata", metas),
		)
		if err != nil {
			return fmt.Errorf("%w: upsert: %w", core.ErrStorage, err)
		}
	}

	if err := s.cli.Delete(ctx, s.opts.Collection, "", staleExpr(sourceKey, len(chunks))); err != nil {
		return fmt.Errorf("%w: prune stale chunks: %w", core.ErrStorage, err)
	}
	s.log.Debug("upserted chunks", zap.String("source_key", sourceKey), zap.Int("count", len(chunks)))
	return nil
}

// staleExpr selects chunks of sourceKey at or beyond index n.
func staleExpr(sourceKey string, n int) string {
	return fmt.Sprintf(`source_key == %s && chunk_index >= %d`, strconv.Quote(sourceKey), n)
}

// Query searches the collection by cosine similarity.
func (s *MilvusStore) Query(ctx context.Context, text string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	vec, err := embedQuery(ctx, s.embedder, text, s.opts.Dim)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	res, err := s.cli.Search(
		ctx,
		s.opts.Collection,
		[]string{},
		"",
		[]string{"source_key", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(vec)},
		milvusVectorField,
		entity.COSINE,
		k,
		s.searchParam,
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(res) == 0 {
		return []models.RetrievedChunk{}, nil
	}
	return parseSearchResult(res[0], float32(s.opts.MinScore))
}

func parseSearchResult(sr mclient.SearchResult, minScore float32) ([]models.RetrievedChunk, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]models.RetrievedChunk, 0, sr.ResultCount)

	sourceCol := columnByName(sr.Fields, "source_key")
	contentCol := columnByName(sr.Fields, "content")
	metaCol := columnByName(sr.Fields, "metadata")

	for i := 0; i < sr.ResultCount; i++ {
		var score float32
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}
		if minScore > 0 && score < minScore {
			continue
		}

		h := models.RetrievedChunk{Score: score, Metadata: map[string]string{}}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok && len(bs) > 0 {
				if err := json.Unmarshal(bs, &h.Metadata); err != nil {
					return nil, fmt.Errorf("decode metadata: %w", err)
				}
			}
		}
		if sourceCol != nil {
			v, _ := sourceCol.GetAsString(i)
			h.Metadata[models.MetaSourceKey] = v
		}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Text = v
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func (s *MilvusStore) Close() error {
	if s == nil || s.cli == nil {
		return nil
	}
	return s.cli.Close()
}
