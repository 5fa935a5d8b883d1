package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
	db "github.com/markdave123-py/docqa/internal/core/database"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/core/knowledge"
	"github.com/markdave123-py/docqa/internal/core/llm"
	objectclient "github.com/markdave123-py/docqa/internal/core/object-client"
)

const embedBatchSize = 32

// components are the pieces both binaries share: job store, object store,
// knowledge store and the ingestion stages.
type components struct {
	jobs      *db.DatabaseClient
	objects   *objectclient.S3Client
	store     core.KnowledgeStore
	extractor core.TextExtractor
	chunker   core.TextChunker
	ingestCfg ingestion_engine.IngestConfig

	closers []func() error
}

func newComponents(ctx context.Context, cfg *config.Config, log *zap.Logger) (c *components, err error) {
	c = &components{}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	c.jobs, err = db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.jobs.Close)
	log.Info("database initialized and ready")

	c.objects, err = objectclient.NewS3Client(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	c.closers = append(c.closers, embedder.Close)

	c.store, err = newKnowledgeStore(ctx, cfg, c.jobs, embedder, log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.store.Close)

	c.ingestCfg = ingestion_engine.IngestConfig{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		FetchTimeout:   cfg.FetchTimeout,
		UploadBucket:   cfg.BucketName,
		ExecuteTimeout: ingestion_engine.DefaultIngestConfig().ExecuteTimeout,
	}
	c.chunker, err = ingestion_engine.NewChunker(c.ingestCfg)
	if err != nil {
		return nil, err
	}
	c.extractor = ingestion_engine.NewSourceExtractor(
		ingestion_engine.NewWebExtractor(cfg.FetchTimeout),
		ingestion_engine.NewDocconvExtractor(c.objects, cfg.BucketName, log),
	)
	return c, nil
}

func newKnowledgeStore(ctx context.Context, cfg *config.Config, jobs *db.DatabaseClient, emb core.EmbeddingProvider, log *zap.Logger) (core.KnowledgeStore, error) {
	switch cfg.VectorBackend {
	case config.BackendMilvus:
		s, err := knowledge.NewMilvusStore(ctx, emb, knowledge.MilvusOptions{
			Address:    cfg.MilvusAddress,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			Collection: cfg.KnowledgeCollection,
			Dim:        cfg.EmbedDim,
			MinScore:   cfg.KnowledgeMinScore,
			BatchSize:  embedBatchSize,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("milvus store: %w", err)
		}
		return s, nil
	default:
		s, err := knowledge.NewPgvectorStore(ctx, jobs.DB(), emb, knowledge.PgvectorOptions{
			Collection:  cfg.KnowledgeCollection,
			Dim:         cfg.EmbedDim,
			MaxDistance: cfg.KnowledgeMaxDistance,
			BatchSize:   embedBatchSize,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("pgvector store: %w", err)
		}
		return s, nil
	}
}

func (c *components) orchestrator(dispatch core.TaskDispatcher, log *zap.Logger) *ingestion_engine.Orchestrator {
	return ingestion_engine.NewOrchestrator(c.jobs, c.extractor, c.chunker, c.store, dispatch, c.ingestCfg, log)
}

// close releases resources in reverse order of creation.
func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
