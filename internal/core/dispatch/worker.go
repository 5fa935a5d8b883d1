package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const consumeRestartDelay = 2 * time.Second

// KafkaWorker consumes tasks from the task topic and hands them to a
// TaskHandler. Offsets are marked once a task succeeded or ran out of
// attempts, so a poison task never blocks its partition.
type KafkaWorker struct {
	group  sarama.ConsumerGroup
	topics []string
	claims *taskConsumer
	log    *zap.Logger
}

func NewKafkaWorker(brokers []string, groupID, topic, clientID string, h core.TaskHandler, policy RetryPolicy, log *zap.Logger) (*KafkaWorker, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	if strings.TrimSpace(groupID) == "" {
		return nil, errors.New("kafka consumer group id is empty")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic is empty")
	}

	cg, err := sarama.NewConsumerGroup(brokers, strings.TrimSpace(groupID), ConsumerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return &KafkaWorker{
		group:  cg,
		topics: []string{strings.TrimSpace(topic)},
		claims: &taskConsumer{handler: h, policy: policy, log: log},
		log:    log,
	}, nil
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (w *KafkaWorker) Run(ctx context.Context) error {
	w.log.Info("kafka worker started", zap.Strings("topics", w.topics))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := w.group.Consume(ctx, w.topics, w.claims); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			w.log.Error("kafka consume", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRestartDelay):
			}
		}
	}
}

func (w *KafkaWorker) Close() error {
	return w.group.Close()
}

type taskConsumer struct {
	handler core.TaskHandler
	policy  RetryPolicy
	log     *zap.Logger
}

func (taskConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (taskConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *taskConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		var task models.Task
		if err := json.Unmarshal(m.Value, &task); err != nil || task.JobID == "" {
			c.log.Error("dropping malformed task message",
				zap.String("topic", m.Topic),
				zap.Int32("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			sess.MarkMessage(m, "")
			continue
		}

		if err := deliver(sess.Context(), c.handler, task, c.policy, c.log); err != nil {
			// Shutting down mid-task: leave the offset so the task is redelivered.
			if sess.Context().Err() != nil {
				return nil
			}
			c.log.Error("task abandoned after retries",
				zap.String("job_id", task.JobID),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
		sess.MarkMessage(m, "")
	}
	return nil
}
