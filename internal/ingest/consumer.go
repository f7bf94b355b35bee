// Package ingest consumes email records from Kafka and feeds them to the
// indexer, recording the outcome of each attempt in the catalog.
package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/inboxforge/inboxforge/internal/catalog"
	"github.com/inboxforge/inboxforge/internal/indexer"
	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/pkg/config"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
	"github.com/inboxforge/inboxforge/pkg/kafka"
	"github.com/inboxforge/inboxforge/pkg/metrics"
	"github.com/inboxforge/inboxforge/pkg/resilience"
)

// Consumer wires the Kafka email-ingest topic to the indexer. Messages
// carry either a single record or a batch; both decode into []EmailRecord.
type Consumer struct {
	consumer *kafka.Consumer
	indexer  *indexer.Indexer
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, idx *indexer.Indexer, cat *catalog.Catalog, m *metrics.Metrics) *Consumer {
	c := &Consumer{
		indexer: idx,
		catalog: cat,
		metrics: m,
		logger:  slog.Default().With("component", "ingest"),
	}
	c.consumer = kafka.NewConsumer(cfg, cfg.Topics.EmailIngest, c.handleMessage)
	return c
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

func (c *Consumer) handleMessage(ctx context.Context, key, value []byte) error {
	records, err := decodeRecords(value)
	if err != nil {
		// Undecodable payloads are logged and committed; redelivery
		// cannot fix them.
		c.logger.Error("dropping undecodable message", "key", string(key), "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	if err := c.catalog.MarkPending(ctx, records); err != nil {
		c.logger.Error("catalog mark pending failed", "error", err)
	}

	indexed, err := c.index(ctx, records)
	ids := recordIDs(records)
	if err != nil {
		if cErr := c.catalog.MarkFailed(ctx, ids, err.Error()); cErr != nil {
			c.logger.Error("catalog mark failed failed", "error", cErr)
		}
		if errors.Is(err, apperrors.ErrMalformedRecord) {
			// Malformed batches never become indexable; drop them.
			c.logger.Error("dropping malformed batch", "key", string(key), "error", err)
			c.observeCommit("malformed")
			return nil
		}
		c.observeCommit("error")
		return err
	}

	if err := c.catalog.MarkIndexed(ctx, ids); err != nil {
		c.logger.Error("catalog mark indexed failed", "error", err)
	}
	if c.metrics != nil {
		c.metrics.EmailsIndexedTotal.Add(float64(indexed))
	}
	c.observeCommit("ok")
	c.logger.Info("batch indexed", "records", indexed)
	return nil
}

// index commits the batch, retrying only write conflicts: the writer slot
// may be held briefly by a running merge. Any other error is permanent for
// this payload.
func (c *Consumer) index(ctx context.Context, records []mail.EmailRecord) (int, error) {
	var indexed int
	var permanent error
	err := resilience.Retry(ctx, "index-commit", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		n, err := c.indexer.Index(ctx, records)
		if err != nil {
			if errors.Is(err, apperrors.ErrWriteConflict) {
				return err
			}
			permanent = err
			return nil
		}
		indexed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if permanent != nil {
		return 0, permanent
	}
	return indexed, nil
}

func (c *Consumer) observeCommit(status string) {
	if c.metrics != nil {
		c.metrics.CommitsTotal.WithLabelValues(status).Inc()
	}
}

// decodeRecords accepts both a JSON array of records and a single record
// object.
func decodeRecords(value []byte) ([]mail.EmailRecord, error) {
	if len(value) > 0 && value[0] == '[' {
		return kafka.DecodeJSON[[]mail.EmailRecord](value)
	}
	rec, err := kafka.DecodeJSON[mail.EmailRecord](value)
	if err != nil {
		return nil, err
	}
	return []mail.EmailRecord{rec}, nil
}

func recordIDs(records []mail.EmailRecord) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}
