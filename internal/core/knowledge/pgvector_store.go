package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.KnowledgeStore = (*PgvectorStore)(nil)

// PgvectorOptions tunes a PgvectorStore.
//
// Collection:  logical collection name; every row is scoped by it.
// Dim:         embedding dimension of the vector column.
// MaxDistance: cosine distance above which hits are dropped (0 disables the floor).
// BatchSize:   texts per embedding request.
type PgvectorOptions struct {
	Collection  string
	Dim         int
	MaxDistance float64
	BatchSize   int
}

// PgvectorStore keeps chunks in Postgres with a pgvector column.
type PgvectorStore struct {
	db       *sql.DB
	embedder core.EmbeddingProvider
	opts     PgvectorOptions
	log      *zap.Logger
}

// NewPgvectorStore creates the table and indexes when missing.
func NewPgvectorStore(ctx context.Context, db *sql.DB, emb core.EmbeddingProvider, opts PgvectorOptions, log *zap.Logger) (*PgvectorStore, error) {
	if db == nil {
		return nil, errors.New("pgvector store: nil db")
	}
	if emb == nil {
		return nil, errors.New("pgvector store: nil embedder")
	}
	if opts.Collection == "" {
		return nil, errors.New("pgvector store: collection is empty")
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("pgvector store: invalid dimension %d", opts.Dim)
	}

	s := &PgvectorStore{db: db, embedder: emb, opts: opts, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgvectorStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS knowledge_chunks (
			collection  TEXT NOT NULL,
			id          TEXT NOT NULL,
			source_key  TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text        TEXT NOT NULL,
			metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding   vector(%d) NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS knowledge_chunks_source_idx
			ON knowledge_chunks (collection, source_key);

		CREATE INDEX IF NOT EXISTS knowledge_chunks_embedding_idx
			ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
	`, s.opts.Dim)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure knowledge schema: %w", err)
	}
	return nil
}

// Add embeds and upserts every chunk of a source in one transaction, then
// removes chunks left over from a longer earlier version of the same source.
func (s *PgvectorStore) Add(ctx context.Context, sourceKey string, texts []string) error {
	chunks := BuildChunks(sourceKey, texts)

	vecs, err := embedAll(ctx, s.embedder, texts, s.opts.BatchSize, s.opts.Dim)
	if err != nil {
		return fmt.Errorf("%w: embed chunks: %w", core.ErrStorage, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", core.ErrStorage, err)
	}

	const upsert = `
		INSERT INTO knowledge_chunks
			(collection, id, source_key, chunk_index, text, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: prepare upsert: %w", core.ErrStorage, err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: encode metadata: %w", core.ErrStorage, err)
		}
		if _, err := stmt.ExecContext(ctx,
			s.opts.Collection, ch.ID, sourceKey, i, ch.Text, meta, pgvector.NewVector(vecs[i]),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: upsert chunk %s: %w", core.ErrStorage, ch.ID, err)
		}
	}

	const prune = `
		DELETE FROM knowledge_chunks
		WHERE collection = $1 AND source_key = $2 AND chunk_index >= $3
	`
	res, err := tx.ExecContext(ctx, prune, s.opts.Collection, sourceKey, len(chunks))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: prune stale chunks: %w", core.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStorage, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("pruned stale chunks", zap.String("source_key", sourceKey), zap.Int64("count", n))
	}
	return nil
}

// Query returns the k chunks closest to text by cosine distance.
func (s *PgvectorStore) Query(ctx context.Context, text string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	vec, err := embedQuery(ctx, s.embedder, text, s.opts.Dim)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	const q = `
		SELECT text, metadata, embedding <=> $2 AS distance
		FROM knowledge_chunks
		WHERE collection = $1
		  AND ($4::float8 <= 0 OR embedding <=> $2 <= $4::float8)
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, q, s.opts.Collection, pgvector.NewVector(vec), k, s.opts.MaxDistance)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]models.RetrievedChunk, 0, k)
	for rows.Next() {
		var (
			hit      models.RetrievedChunk
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&hit.Text, &meta, &distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		hit.Score = float32(1 - distance)
		out = append(out, hit)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the database client.
func (s *PgvectorStore) Close() error {
	return nil
}
