package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.CodeConflict, "consumer already running")
	ErrNoHandler      = errors.New(errors.CodeInternal, "consumer has no handler")
)

// Reader abstracts kafka.Reader for testing.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message.  Returning a Permanent error skips retries.
type Handler func(ctx context.Context, msg kafka.Message) error

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the consumer dead-letters it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// ConsumerOptions configures retries and dead-lettering.
type ConsumerOptions struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	DeadLetterTopic string
	DeadLetters     *Producer
	// FetchErrorBackoff is the pause after a failed fetch.
	FetchErrorBackoff time.Duration
}

// ConsumerStats counts consumer outcomes.
type ConsumerStats struct {
	Consumed     int64
	Processed    int64
	Retried      int64
	Failed       int64
	DeadLettered int64
}

// Consumer runs one handler over a reader with at-least-once commits: a
// message is committed after it is processed or dead-lettered.
type Consumer struct {
	reader  Reader
	handler Handler
	opts    ConsumerOptions
	logger  logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	consumed, processed, retried, failed, deadLettered atomic.Int64
}

// NewReader builds a consumer-group reader for cfg.Topic.
func NewReader(cfg config.KafkaConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers are required")
	}
	if cfg.GroupID == "" || cfg.Topic == "" {
		return nil, errors.InvalidParam("kafka group_id and topic are required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          10 << 20,
		MaxWait:           time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       kafka.LastOffset,
		Dialer:            &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	}), nil
}

// NewConsumer creates a Consumer.
func NewConsumer(reader Reader, handler Handler, opts ConsumerOptions, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxRetryBackoff <= 0 {
		opts.MaxRetryBackoff = 30 * time.Second
	}
	if opts.FetchErrorBackoff <= 0 {
		opts.FetchErrorBackoff = time.Second
	}
	return &Consumer{reader: reader, handler: handler, opts: opts, logger: log.Named("kafka_consumer")}
}

// Start runs the consume loop until ctx ends or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return ErrNoHandler
	}
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("Kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.FetchErrorBackoff):
			}
			continue
		}
		c.consumed.Add(1)

		if err := c.process(ctx, m); err != nil {
			// Only cancellation leaves a message uncommitted.
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Int64("offset", m.Offset), logging.Err(err))
		}
	}
}

// process returns an error only when ctx was canceled mid-retry.
func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	err := c.handler(ctx, m)
	backoff := c.opts.RetryBackoff
	for attempt := 0; err != nil && attempt < c.opts.MaxRetries && !isPermanent(err); attempt++ {
		c.retried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		err = c.handler(ctx, m)
		backoff *= 2
		if backoff > c.opts.MaxRetryBackoff {
			backoff = c.opts.MaxRetryBackoff
		}
	}
	if err == nil {
		c.processed.Add(1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.failed.Add(1)
	c.logger.Error("Message processing failed",
		logging.String("topic", m.Topic),
		logging.Int64("offset", m.Offset),
		logging.Bool("permanent", isPermanent(err)),
		logging.Err(err))
	c.deadLetter(ctx, m, err)
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.opts.DeadLetters == nil || c.opts.DeadLetterTopic == "" {
		return
	}
	headers := map[string]string{
		"original_topic":  m.Topic,
		"original_offset": strconv.FormatInt(m.Offset, 10),
		"error_message":   cause.Error(),
	}
	for _, h := range m.Headers {
		if _, taken := headers[h.Key]; !taken {
			headers[h.Key] = string(h.Value)
		}
	}
	err := c.opts.DeadLetters.Publish(ctx, Message{Topic: c.opts.DeadLetterTopic, Key: m.Key, Value: m.Value, Headers: headers})
	if err != nil {
		c.logger.Error("Failed to send to dead letter topic", logging.Err(err))
		return
	}
	c.deadLettered.Add(1)
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:     c.consumed.Load(),
		Processed:    c.processed.Load(),
		Retried:      c.retried.Load(),
		Failed:       c.failed.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}

// Close stops the loop and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
