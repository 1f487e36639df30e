package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.CodeInternal, "producer closed")

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes refresh events and dead letters.
type Producer struct {
	writer Writer
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
}

// NewProducer creates a producer on brokers.  Topics come from each message.
func NewProducer(brokers []string, log logging.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  4,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}
	return NewProducerWithWriter(w, log), nil
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w Writer, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Producer{writer: w, logger: log.Named("kafka_producer")}
}

// Publish writes one message synchronously.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return errors.InvalidParam("message topic is required")
	}
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.logger.Error("Publish failed", logging.String("topic", msg.Topic), logging.Err(err))
		return errors.Wrap(err, errors.CodeExternalService, "kafka publish failed").WithDetail(msg.Topic)
	}
	p.sent.Add(1)
	return nil
}

// PublishEvent encodes and publishes a refresh event keyed by its type, so
// events of one type stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, topic string, evt *RefreshEvent) error {
	value, err := evt.Encode()
	if err != nil {
		return err
	}
	return p.Publish(ctx, Message{
		Topic:   topic,
		Key:     []byte(evt.EventType),
		Value:   value,
		Headers: map[string]string{"event_type": evt.EventType, "event_id": evt.EventID},
	})
}

// Sent returns the number of messages written.
func (p *Producer) Sent() int64 {
	return p.sent.Load()
}

// Close flushes and closes the writer once.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

func toKafkaMessage(msg Message) kafka.Message {
	km := kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Time: time.Now()}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}
