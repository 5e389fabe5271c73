package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ErrAlreadyRunning is returned by a second Start.
var ErrAlreadyRunning = errors.New(errors.ErrCodeValidation, "consumer already running")

// RetryConfig defines handler retry behaviour.
type RetryConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	DeadLetterTopic string
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topics         []string
	StartLatest    bool
	MaxWait        time.Duration
	SessionTimeout time.Duration
	RetryConfig    RetryConfig
}

// ConsumerConfigFrom builds the worker's consumer configuration: the
// requested-batch topic with dead lettering under the same prefix.
func ConsumerConfigFrom(c config.KafkaConfig) ConsumerConfig {
	return ConsumerConfig{
		Brokers: c.Brokers,
		GroupID: c.GroupID,
		Topics:  []string{TopicName(c.TopicPrefix, TopicBatchRequested)},
		RetryConfig: RetryConfig{
			DeadLetterTopic: TopicName(c.TopicPrefix, TopicDeadLetter),
		},
	}
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publisher is the dead-letter sink.
type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
	Close() error
}

// Consumer dispatches fetched messages to per-topic handlers and commits
// them once handled. A handler that keeps failing is retried with
// exponential backoff and the message is then dead-lettered.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	deadLetter publisher

	consumed     atomic.Int64
	processed    atomic.Int64
	deadLettered atomic.Int64
}

// NewConsumer joins cfg.GroupID on cfg.Topics. A producer for failed
// messages is created only when a dead letter topic is configured.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}

	readerCfg := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MaxWait:        cfg.MaxWait,
		SessionTimeout: cfg.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
	}
	if cfg.StartLatest {
		readerCfg.StartOffset = kafka.LastOffset
	}

	var dl publisher
	if cfg.RetryConfig.DeadLetterTopic != "" {
		p, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers}, logger)
		if err != nil {
			return nil, err
		}
		dl = p
	}
	return newConsumer(kafka.NewReader(readerCfg), dl, cfg, logger), nil
}

func newConsumer(r ReaderInterface, dl publisher, cfg ConsumerConfig, logger logging.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		config:     cfg,
		logger:     logger.Named("kafka_consumer"),
		handlers:   make(map[string]MessageHandler),
		deadLetter: dl,
	}
}

// Subscribe routes messages of topic to handler.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
}

// Start runs the consume loop until ctx is cancelled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started", logging.String("group", c.config.GroupID))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.consumed.Add(1)

		msg := &Message{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Timestamp: m.Time,
			Headers:   make(map[string]string, len(m.Headers)),
		}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		} else if c.processMessage(ctx, msg, handler) {
			c.processed.Add(1)
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("commit failed", logging.Err(err))
		}
	}
}

// processMessage reports whether handler eventually succeeded. Failures are
// dead-lettered when configured; the caller commits only while ctx is live,
// so a message that could not be dead-lettered is never committed.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) bool {
	err := handler(ctx, msg)
	if err == nil {
		return true
	}

	maxRetries := c.config.RetryConfig.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	backoff := c.config.RetryConfig.RetryBackoff
	if backoff == 0 {
		backoff = time.Second
	}
	maxBackoff := c.config.RetryConfig.MaxRetryBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	for i := 0; i < maxRetries && !errors.IsValidation(err); i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if err = handler(ctx, msg); err == nil {
			return true
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	c.logger.Error("message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))

	if c.deadLetter == nil || c.config.RetryConfig.DeadLetterTopic == "" {
		c.logger.Warn("message dropped, no dead letter topic",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset))
		return false
	}
	c.publishDeadLetter(ctx, msg, err, c.config.RetryConfig.RetryBackoff, maxBackoff)
	return false
}

// publishDeadLetter retries until the dead letter topic accepts msg or ctx
// is cancelled. On cancellation the message stays uncommitted and is
// redelivered.
func (c *Consumer) publishDeadLetter(ctx context.Context, msg *Message, cause error, backoff, maxBackoff time.Duration) {
	if backoff <= 0 {
		backoff = time.Second
	}
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["error_message"] = cause.Error()

	dlMsg := &ProducerMessage{
		Topic:   c.config.RetryConfig.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	for attempt := 1; ; attempt++ {
		dlErr := c.deadLetter.Publish(ctx, dlMsg)
		if dlErr == nil {
			c.deadLettered.Add(1)
			return
		}
		c.logger.Error("failed to dead-letter message",
			logging.Int64("offset", msg.Offset),
			logging.Int("attempt", attempt),
			logging.Err(dlErr))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Consumed, Processed and DeadLettered are running counters.
func (c *Consumer) Consumed() int64     { return c.consumed.Load() }
func (c *Consumer) Processed() int64    { return c.processed.Load() }
func (c *Consumer) DeadLettered() int64 { return c.deadLettered.Load() }

// Close stops the loop and releases the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	if c.deadLetter != nil {
		_ = c.deadLetter.Close()
	}
	c.logger.Info("kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}

// BatchRequestHandler decodes queued batch requests for fn. Malformed
// messages fail validation and are not retried.
func BatchRequestHandler(fn func(ctx context.Context, req reaction.BatchRequest) error) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "malformed batch request")
		}
		var req reaction.BatchRequest
		if err := env.DecodePayload(&req); err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "malformed batch request")
		}
		if req.BatchID == "" {
			req.BatchID = env.EventID
		}
		return fn(ctx, req)
	}
}

// ValidateConsumerConfig checks the fields NewConsumer cannot default.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "GroupID required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	if cfg.RetryConfig.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	return nil
}
