// Package kafka wraps segmentio/kafka-go with the small producer and
// consumer surface the ingest pipeline needs. Values on the wire are
// JSON; keys drive partition hashing.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/inboxforge/inboxforge/pkg/config"
	"github.com/inboxforge/inboxforge/pkg/logger"
)

// Handler processes one fetched message. Returning an error leaves the
// offset uncommitted so the message is redelivered.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer fetches from a single topic and commits offsets only after
// the handler succeeds.
type Consumer struct {
	reader *kafka.Reader
	handle Handler
	logger *slog.Logger
}

// NewConsumer builds a group consumer for topic. It starts from the
// earliest offset so a fresh group replays the backlog.
func NewConsumer(cfg config.KafkaConfig, topic string, handle Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		handle: handle,
		logger: logger.WithComponent("kafka-consumer").With("topic", topic),
	}
}

// Start runs the fetch/handle/commit loop until ctx is cancelled. It
// closes the reader before returning.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}

		if err := c.handle(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("handler failed",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}
