package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core/dispatch"
)

// Worker is the Kafka consumer process. It only executes tasks; it never
// dispatches, so its orchestrator has no dispatcher.
type Worker struct {
	*components
	consumer *dispatch.KafkaWorker
	log      *zap.Logger
}

func NewWorker(ctx context.Context, cfg *config.Config, log *zap.Logger) (w *Worker, err error) {
	if cfg.Dispatcher != config.DispatcherKafka {
		return nil, fmt.Errorf("worker requires DISPATCHER=kafka, got %q", cfg.Dispatcher)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	c, err := newComponents(startCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	if err := dispatch.EnsureTopic(cfg.KafkaBrokers, cfg.KafkaClientID, cfg.KafkaTopic, kafkaPartitions, 1); err != nil {
		return nil, fmt.Errorf("ensure kafka topic: %w", err)
	}

	consumer, err := dispatch.NewKafkaWorker(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, cfg.KafkaClientID,
		c.orchestrator(nil, log), retryPolicy(cfg), log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, consumer.Close)

	return &Worker{components: c, consumer: consumer, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Run(ctx)
}

func (w *Worker) Close() error {
	return w.components.close()
}
