package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeServiceUnavailable, "producer closed")

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers         []string
	TopicPrefix     string
	Acks            string
	MaxRetries      int
	BatchTimeout    time.Duration
	MaxMessageBytes int
	WriteTimeout    time.Duration
}

// ProducerConfigFrom maps the kafka section onto a ProducerConfig.
func ProducerConfigFrom(c config.KafkaConfig) ProducerConfig {
	return ProducerConfig{
		Brokers:         c.Brokers,
		TopicPrefix:     c.TopicPrefix,
		BatchTimeout:    c.BatchTimeout,
		MaxMessageBytes: c.MaxMessageBytes,
	}
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes batch events and batch requests.
type Producer struct {
	writer WriterInterface
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewProducer creates a writer for cfg.Brokers. Acks defaults to all
// replicas.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	cfg = producerDefaults(cfg)
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.Acks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "one":
		requiredAcks = kafka.RequireOne
	default:
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxRetries + 1,
		BatchTimeout:           cfg.BatchTimeout,
		BatchBytes:             int64(cfg.MaxMessageBytes),
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           requiredAcks,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg, logger), nil
}

func newProducer(w WriterInterface, cfg ProducerConfig, logger logging.Logger) *Producer {
	return &Producer{
		writer: w,
		config: producerDefaults(cfg),
		logger: logger.Named("kafka_producer"),
	}
}

func producerDefaults(cfg ProducerConfig) ProducerConfig {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 1024 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return cfg
}

// Publish writes a single message.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	if len(msg.Value) == 0 {
		return errors.New(errors.ErrCodeValidation, "value required")
	}
	if len(msg.Value) > p.config.MaxMessageBytes {
		return errors.Newf(errors.ErrCodeValidation, "message too large: %d bytes", len(msg.Value))
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeExternalService, "publish failed").WithDetail(msg.Topic)
	}
	p.sent.Add(1)

	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Duration("latency", time.Since(start)))
	return nil
}

// PublishBatchEvent publishes ev on the topic named by its type, keyed by
// batch id.
func (p *Producer) PublishBatchEvent(ctx context.Context, ev reaction.BatchEvent) error {
	env, err := NewEventEnvelope(string(ev.Type), ev)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"workspace": ev.Workspace}
	msg, err := env.ToMessage(TopicName(p.config.TopicPrefix, string(ev.Type)), ev.BatchID)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}

// EnqueueBatch queues req for a worker.
func (p *Producer) EnqueueBatch(ctx context.Context, req reaction.BatchRequest) error {
	if len(req.Inputs) == 0 {
		return errors.New(errors.ErrCodeRXNInvalidInput, "a queued batch needs at least one input")
	}
	env, err := NewEventEnvelope(TopicBatchRequested, req)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(TopicName(p.config.TopicPrefix, TopicBatchRequested), req.BatchID)
	if err != nil {
		return err
	}
	return p.Publish(ctx, msg)
}

// Sent and Failed count published and failed messages.
func (p *Producer) Sent() int64   { return p.sent.Load() }
func (p *Producer) Failed() int64 { return p.failed.Load() }

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

// ValidateProducerConfig rejects configs without brokers or with negative
// retries.
func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	return nil
}
