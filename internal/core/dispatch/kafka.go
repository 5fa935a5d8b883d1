package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const taskRetention = 7 * 24 * time.Hour

// ProducerConfig is the sarama config for an idempotent, acks=all producer
// keyed by job id.
func ProducerConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.ClientID = strings.TrimSpace(clientID)
	return sc
}

// ConsumerConfig is the sarama config used by KafkaWorker.
func ConsumerConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.Timeout = 30 * time.Second
	sc.Consumer.Group.Session.Timeout = 30 * time.Second
	sc.ClientID = strings.TrimSpace(clientID)
	return sc
}

// KafkaDispatcher publishes tasks as JSON to a single topic.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

var _ core.TaskDispatcher = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(brokers []string, topic, clientID string, log *zap.Logger) (*KafkaDispatcher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	p, err := sarama.NewSyncProducer(brokers, ProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaDispatcherWithProducer(p, topic, log)
}

// NewKafkaDispatcherWithProducer wraps an existing producer.
func NewKafkaDispatcherWithProducer(p sarama.SyncProducer, topic string, log *zap.Logger) (*KafkaDispatcher, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	return &KafkaDispatcher{producer: p, topic: topic, log: log}, nil
}

func (d *KafkaDispatcher) Enqueue(ctx context.Context, task models.Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	partition, offset, err := d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(task.JobID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", task.JobID, err)
	}

	d.log.Debug("task published",
		zap.String("job_id", task.JobID),
		zap.String("task", task.Name),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.producer.Close()
}

// EnsureTopic creates the task topic when it does not exist yet.
func EnsureTopic(brokers []string, clientID, topic string, partitions int32, replicationFactor int16) error {
	if len(brokers) == 0 {
		return errors.New("kafka brokers is empty")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("kafka topic is empty")
	}
	if partitions <= 0 {
		partitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = strings.TrimSpace(clientID)

	admin, err := sarama.NewClusterAdmin(brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if _, ok := topics[topic]; ok {
		return nil
	}

	retention := strconv.FormatInt(taskRetention.Milliseconds(), 10)
	td := &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
		ConfigEntries:     map[string]*string{"retention.ms": &retention},
	}
	if err := admin.CreateTopic(topic, td, false); err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
