package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// ErrProducerClosed marks a publish attempted after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeMessageQueueError, "producer closed")

// writerInterface abstracts kafka.Writer for testing.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes run events.
type Producer struct {
	writer writerInterface
	source string
	logger logging.Logger
	closed atomic.Bool
}

// NewProducer creates a Producer over the configured brokers. Messages
// are keyed by run ID so one run's events stay ordered on one partition.
func NewProducer(cfg config.KafkaConfig, source string, logger logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 100 * time.Millisecond
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  cfg.ProducerRetries + 1,
		BatchTimeout: batchTimeout,
		RequiredAcks: kafkago.RequireAll,
	}
	return &Producer{writer: writer, source: source, logger: logger}
}

func newProducerWithWriter(w writerInterface, source string, logger logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Producer{writer: w, source: source, logger: logger}
}

// Publish wraps payload in an envelope and writes it to topic, keyed by
// key.
func (p *Producer) Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	envelope, err := NewEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode event envelope")
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: raw,
		Time:  envelope.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessageQueueError, "publish event")
	}

	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_type", eventType),
		logging.String("key", key),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
