package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
	pkgerrors "github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// mockKafkaReader serves queued messages and then blocks until cancelled.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    int
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.closed++
	return nil
}

func (m *mockKafkaReader) commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*ProducerMessage
}

func (r *recordingPublisher) Publish(ctx context.Context, msg *ProducerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []*ProducerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ProducerMessage(nil), r.msgs...)
}

// flakyPublisher rejects publishes until more than failures attempts were made.
type flakyPublisher struct {
	recordingPublisher
	failures int32
	attempts atomic.Int32
}

func (f *flakyPublisher) Publish(ctx context.Context, msg *ProducerMessage) error {
	if f.attempts.Add(1) <= f.failures {
		return errors.New("dead letter topic unavailable")
	}
	return f.recordingPublisher.Publish(ctx, msg)
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "openad-rxn-worker",
		Topics:  []string{TopicBatchRequested},
		RetryConfig: RetryConfig{
			MaxRetries:      2,
			RetryBackoff:    time.Millisecond,
			MaxRetryBackoff: 2 * time.Millisecond,
			DeadLetterTopic: TopicDeadLetter,
		},
	}
}

func requestMessage(t *testing.T, req reaction.BatchRequest) kafka.Message {
	t.Helper()
	env, err := NewEventEnvelope(TopicBatchRequested, req)
	require.NoError(t, err)
	msg, err := env.ToMessage(TopicBatchRequested, req.BatchID)
	require.NoError(t, err)
	return kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Headers: []kafka.Header{{Key: "event_type", Value: []byte(TopicBatchRequested)}}}
}

func TestValidateConsumerConfig(t *testing.T) {
	assert.NoError(t, ValidateConsumerConfig(testConsumerConfig()))

	cfg := testConsumerConfig()
	cfg.GroupID = ""
	assert.True(t, pkgerrors.IsValidation(ValidateConsumerConfig(cfg)))

	cfg = testConsumerConfig()
	cfg.Topics = nil
	assert.True(t, pkgerrors.IsValidation(ValidateConsumerConfig(cfg)))

	cfg = testConsumerConfig()
	cfg.RetryConfig.MaxRetries = -1
	assert.True(t, pkgerrors.IsValidation(ValidateConsumerConfig(cfg)))
}

func TestConsumerConfigFrom(t *testing.T) {
	cfg := ConsumerConfigFrom(config.KafkaConfig{Brokers: []string{"k:9092"}, GroupID: "g", TopicPrefix: "openad"})
	assert.Equal(t, []string{"openad.rxn.batch.requested"}, cfg.Topics)
	assert.Equal(t, "openad.rxn.batch.dead_letter", cfg.RetryConfig.DeadLetterTopic)
}

func TestConsumer_DispatchesBatchRequests(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{
		requestMessage(t, reaction.BatchRequest{BatchID: "b-1", Inputs: []string{"CCO"}}),
		{Topic: "unknown.topic", Value: []byte("{}")},
		requestMessage(t, reaction.BatchRequest{BatchID: "b-2", Inputs: []string{"CC", "CCC"}}),
	}}
	c := newConsumer(reader, &recordingPublisher{}, testConsumerConfig(), testutil.NewRecordingLogger())

	var (
		mu  sync.Mutex
		got []reaction.BatchRequest
	)
	c.Subscribe(TopicBatchRequested, BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		return nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, ErrAlreadyRunning, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "b-1", got[0].BatchID)
	assert.Equal(t, []string{"CC", "CCC"}, got[1].Inputs)
	assert.Equal(t, int64(3), c.Consumed())
	assert.Equal(t, int64(2), c.Processed())
	assert.Equal(t, 1, reader.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{requestMessage(t, reaction.BatchRequest{BatchID: "b-1", Inputs: []string{"CCO"}})}}
	dl := &recordingPublisher{}
	log := testutil.NewRecordingLogger()
	c := newConsumer(reader, dl, testConsumerConfig(), log)

	var calls atomic.Int32
	c.Subscribe(TopicBatchRequested, func(ctx context.Context, msg *Message) error {
		calls.Add(1)
		return errors.New("rxn unavailable")
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
	msgs := dl.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicDeadLetter, msgs[0].Topic)
	assert.Equal(t, TopicBatchRequested, msgs[0].Headers["original_topic"])
	assert.Equal(t, "rxn unavailable", msgs[0].Headers["error_message"])
	assert.Equal(t, int64(1), c.DeadLettered())
	assert.True(t, log.Has("error", "message processing failed"))
}

func TestConsumer_DeadLetterPublishIsRetried(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: TopicBatchRequested, Value: []byte("not json")}}}
	dl := &flakyPublisher{failures: 2}
	log := testutil.NewRecordingLogger()
	c := newConsumer(reader, dl, testConsumerConfig(), log)
	c.Subscribe(TopicBatchRequested, BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		return nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(3), dl.attempts.Load())
	assert.Len(t, dl.published(), 1)
	assert.Equal(t, int64(1), c.DeadLettered())
	assert.True(t, log.Has("error", "failed to dead-letter message"))
}

func TestConsumer_UndeliverableMessageIsNotCommitted(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: TopicBatchRequested, Value: []byte("not json")}}}
	dl := &flakyPublisher{failures: 1 << 30}
	c := newConsumer(reader, dl, testConsumerConfig(), testutil.NewRecordingLogger())
	c.Subscribe(TopicBatchRequested, BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		return nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return dl.attempts.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Zero(t, reader.commits())
	assert.Zero(t, c.DeadLettered())
}

func TestConsumer_DropsWithoutDeadLetterTopic(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: TopicBatchRequested, Value: []byte("not json")}}}
	cfg := testConsumerConfig()
	cfg.RetryConfig.DeadLetterTopic = ""
	log := testutil.NewRecordingLogger()
	c := newConsumer(reader, nil, cfg, log)
	c.Subscribe(TopicBatchRequested, BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		return nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())
	assert.True(t, log.Has("warn", "message dropped"))
}

func TestConsumer_MalformedRequestIsNotRetried(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{{Topic: TopicBatchRequested, Value: []byte("not json")}}}
	dl := &recordingPublisher{}
	c := newConsumer(reader, dl, testConsumerConfig(), testutil.NewRecordingLogger())

	var calls atomic.Int32
	c.Subscribe(TopicBatchRequested, BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, dl.published(), 1)
}

func TestBatchRequestHandler_DefaultsBatchID(t *testing.T) {
	env, err := NewEventEnvelope(TopicBatchRequested, reaction.BatchRequest{Inputs: []string{"CCO"}})
	require.NoError(t, err)
	msg, err := env.ToMessage(TopicBatchRequested, "")
	require.NoError(t, err)

	var got reaction.BatchRequest
	h := BatchRequestHandler(func(ctx context.Context, req reaction.BatchRequest) error {
		got = req
		return nil
	})
	require.NoError(t, h(context.Background(), &Message{Value: msg.Value}))
	assert.Equal(t, env.EventID, got.BatchID)
}
