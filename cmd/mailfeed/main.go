// Command mailfeed publishes email records to the ingest topic. It is
// the development and backfill companion to indexd: point it at a JSON
// file holding one EmailRecord or an array of them and it feeds the
// pipeline the same events a production converter would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/pkg/config"
	"github.com/inboxforge/inboxforge/pkg/kafka"
	"github.com/inboxforge/inboxforge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "JSON file with an EmailRecord or an array of EmailRecords")
	batch := flag.Int("batch", 100, "records per published message")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("mailfeed", cfg.Logging.Level, cfg.Logging.Format)

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: mailfeed -input emails.json [-config path] [-batch n]")
		os.Exit(2)
	}

	records, err := loadRecords(*input)
	if err != nil {
		slog.Error("failed to load input", "path", *input, "error", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		slog.Info("no records to publish", "path", *input)
		return
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.EmailIngest)
	defer producer.Close()

	ctx := context.Background()
	published := 0
	for start := 0; start < len(records); start += *batch {
		end := min(start+*batch, len(records))
		chunk := records[start:end]
		if err := producer.Publish(ctx, chunk[0].ID, chunk); err != nil {
			slog.Error("publish failed", "from", start, "count", len(chunk), "error", err)
			os.Exit(1)
		}
		published += len(chunk)
	}
	slog.Info("records published",
		"topic", cfg.Kafka.Topics.EmailIngest, "count", published)
}

// loadRecords accepts either a single object or an array so small
// fixtures do not need wrapping.
func loadRecords(path string) ([]mail.EmailRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []mail.EmailRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}
		return records, nil
	}
	var rec mail.EmailRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return []mail.EmailRecord{rec}, nil
}
