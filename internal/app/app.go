package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/dispatch"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/core/llm"
	"github.com/markdave123-py/docqa/internal/core/query"
)

const (
	startupTimeout  = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
	kafkaPartitions = 3
)

// App is the API process: HTTP surface, query pipeline, stale sweep and,
// with the memory dispatcher, the ingestion workers.
type App struct {
	cfg *config.Config
	log *zap.Logger

	*components
	Orchestrator *ingestion_engine.Orchestrator
	Pipeline     *query.Pipeline
	Server       *Server

	memory  *dispatch.MemoryDispatcher
	sweeper *ingestion_engine.Sweeper
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (a *App, err error) {
	appCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	c, err := newComponents(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	a = &App{cfg: cfg, log: log, components: c}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	var taskDispatcher core.TaskDispatcher
	switch cfg.Dispatcher {
	case config.DispatcherKafka:
		if err := dispatch.EnsureTopic(cfg.KafkaBrokers, cfg.KafkaClientID, cfg.KafkaTopic, kafkaPartitions, 1); err != nil {
			return nil, fmt.Errorf("ensure kafka topic: %w", err)
		}
		kd, err := dispatch.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaClientID, log)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, kd.Close)
		taskDispatcher = kd
	default:
		a.memory = dispatch.NewMemoryDispatcher(cfg.WorkerConcurrency, retryPolicy(cfg), log)
		taskDispatcher = a.memory
	}
	log.Info("task dispatcher ready", zap.String("dispatcher", cfg.Dispatcher))

	a.Orchestrator = c.orchestrator(taskDispatcher, log)
	a.sweeper = ingestion_engine.NewSweeper(c.jobs, taskDispatcher, cfg.StalePendingAfter, cfg.SweepInterval, log)

	generator, err := llm.NewGenerator(appCtx, cfg, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}
	c.closers = append(c.closers, generator.Close)

	rewriter := llm.Generator(generator)
	if cfg.RewriteModel != cfg.GenModel {
		rewriter, err = llm.NewGenerator(appCtx, cfg, cfg.RewriteModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the rewrite llm: %w", err)
		}
		c.closers = append(c.closers, rewriter.Close)
	}
	a.Pipeline = query.NewPipeline(rewriter, generator, c.store, cfg.QueryTopK, log)

	router := NewRouter(cfg, a.Orchestrator, a.Pipeline, c.objects, log)
	a.Server = NewServer(net.JoinHostPort("", cfg.Port), router, log)
	return a, nil
}

// Run serves until ctx is cancelled, then drains the server and workers.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.memory != nil {
		a.memory.Start(gctx, a.Orchestrator)
		g.Go(func() error {
			<-gctx.Done()
			a.memory.Stop()
			return nil
		})
	}

	g.Go(func() error { return a.sweeper.Run(gctx) })
	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() error {
	return a.components.close()
}

func retryPolicy(cfg *config.Config) dispatch.RetryPolicy {
	return dispatch.RetryPolicy{MaxAttempts: cfg.TaskMaxAttempts, Backoff: cfg.TaskRetryBackoff}
}
