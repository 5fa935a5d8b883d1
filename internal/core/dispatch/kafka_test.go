package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/models"
)

func TestProducerConfigIsValid(t *testing.T) {
	sc := ProducerConfig(" docqa ")
	require.NoError(t, sc.Validate())
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, "docqa", sc.ClientID)

	require.NoError(t, ConsumerConfig("docqa").Validate())
}

func TestKafkaDispatcherPublishesTaskKeyedByJob(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	defer producer.Close()

	task := models.Task{
		Name:   models.TaskProcessURL,
		JobID:  "job-1",
		Source: models.SourceRef{Kind: models.SourceWeb, URL: "https://example.com/"},
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "ingestion-tasks" {
			return fmt.Errorf("topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "job-1" {
			return fmt.Errorf("key %q", key)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got models.Task
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got != task {
			return fmt.Errorf("payload %+v", got)
		}
		return nil
	})

	d, err := NewKafkaDispatcherWithProducer(producer, "ingestion-tasks", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Enqueue(context.Background(), task))
}

func TestKafkaDispatcherSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	defer producer.Close()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	d, err := NewKafkaDispatcherWithProducer(producer, "ingestion-tasks", zap.NewNop())
	require.NoError(t, err)

	err = d.Enqueue(context.Background(), models.Task{JobID: "job-1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestKafkaDispatcherCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	defer producer.Close()

	d, err := NewKafkaDispatcherWithProducer(producer, "ingestion-tasks", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Enqueue(ctx, models.Task{JobID: "job-1"}), context.Canceled)
}

func TestKafkaDispatcherRequiresTopic(t *testing.T) {
	_, err := NewKafkaDispatcherWithProducer(nil, "  ", zap.NewNop())
	assert.Error(t, err)
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct{ msgs chan *sarama.ConsumerMessage }

func (c *fakeClaim) Topic() string                            { return "ingestion-tasks" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func claimOf(t *testing.T, values ...[]byte) *fakeClaim {
	t.Helper()
	c := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, len(values))}
	for i, v := range values {
		c.msgs <- &sarama.ConsumerMessage{Topic: "ingestion-tasks", Offset: int64(i), Value: v}
	}
	close(c.msgs)
	return c
}

func taskPayload(t *testing.T, jobID string) []byte {
	t.Helper()
	b, err := json.Marshal(models.Task{Name: models.TaskProcessURL, JobID: jobID})
	require.NoError(t, err)
	return b
}

func TestConsumeClaimMarksEveryMessage(t *testing.T) {
	h := newFlakyHandler(0)
	c := &taskConsumer{handler: h, policy: RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}, log: zap.NewNop()}
	sess := &fakeSession{ctx: context.Background()}

	claim := claimOf(t,
		taskPayload(t, "good"),
		[]byte("{not json"),
		[]byte(`{"task":"process_url_task"}`),
		taskPayload(t, "also-good"),
	)
	require.NoError(t, c.ConsumeClaim(sess, claim))

	assert.Equal(t, []int64{0, 1, 2, 3}, sess.marked)
	assert.Equal(t, 1, h.count("good"))
	assert.Equal(t, 1, h.count("also-good"))
}

func TestConsumeClaimMarksPoisonTaskAfterLastAttempt(t *testing.T) {
	h := newFlakyHandler(100)
	c := &taskConsumer{handler: h, policy: RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, log: zap.NewNop()}
	sess := &fakeSession{ctx: context.Background()}

	require.NoError(t, c.ConsumeClaim(sess, claimOf(t, taskPayload(t, "poison"))))
	assert.Equal(t, 3, h.count("poison"))
	assert.Equal(t, []int64{0}, sess.marked)
}

func TestConsumeClaimLeavesOffsetOnShutdown(t *testing.T) {
	h := newFlakyHandler(100)
	c := &taskConsumer{handler: h, policy: RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}, log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess := &fakeSession{ctx: ctx}

	require.NoError(t, c.ConsumeClaim(sess, claimOf(t, taskPayload(t, "interrupted"))))
	assert.Empty(t, sess.marked)
}
