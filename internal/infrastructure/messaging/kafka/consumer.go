package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Handler processes one decoded event. Returning an error leaves the
// message uncommitted so it is redelivered.
type Handler func(ctx context.Context, envelope *EventEnvelope) error

// readerInterface abstracts kafka.Reader for testing.
type readerInterface interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer runs a handler loop over one topic within a consumer group.
type Consumer struct {
	reader     readerInterface
	topic      string
	maxRetries int
	backoff    time.Duration
	logger     logging.Logger
}

// NewConsumer creates a Consumer for topic in the configured group.
func NewConsumer(cfg config.KafkaConfig, wcfg config.WorkerConfig, topic string, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	startOffset := kafkago.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafkago.FirstOffset
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return &Consumer{
		reader:     reader,
		topic:      topic,
		maxRetries: wcfg.MaxRetries,
		backoff:    wcfg.RetryBackoff,
		logger:     logger,
	}
}

func newConsumerWithReader(r readerInterface, topic string, maxRetries int, backoff time.Duration, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Consumer{reader: r, topic: topic, maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// Run consumes until ctx is cancelled. Handler failures are retried with
// a fixed backoff; a message that exhausts its retries is committed and
// skipped so one poison message cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, errors.ErrCodeMessageQueueError, "fetch message")
		}

		var envelope EventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			c.logger.Error("dropping undecodable message",
				logging.String("topic", c.topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, errors.ErrCodeMessageQueueError, "commit message")
			}
			continue
		}

		if err := c.handleWithRetry(ctx, handler, &envelope); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("handler exhausted retries, skipping message",
				logging.String("topic", c.topic),
				logging.String("event_id", envelope.EventID),
				logging.Err(err),
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, errors.ErrCodeMessageQueueError, "commit message")
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler Handler, envelope *EventEnvelope) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && c.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}
		if lastErr = ctx.Err(); lastErr != nil {
			return lastErr
		}
		if lastErr = c.handle(ctx, handler, envelope); lastErr == nil {
			return nil
		}
		c.logger.Warn("handler attempt failed",
			logging.String("event_id", envelope.EventID),
			logging.Int("attempt", attempt+1),
			logging.Err(lastErr),
		)
	}
	return lastErr
}

func (c *Consumer) handle(ctx context.Context, handler Handler, envelope *EventEnvelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeInternal, "handler panic: %v", r)
		}
	}()
	return handler(ctx, envelope)
}

// Close shuts the reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
