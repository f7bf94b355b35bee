package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inboxforge/inboxforge/internal/catalog"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/indexer"
	"github.com/inboxforge/inboxforge/internal/ingest"
	"github.com/inboxforge/inboxforge/pkg/config"
	"github.com/inboxforge/inboxforge/pkg/health"
	"github.com/inboxforge/inboxforge/pkg/logger"
	"github.com/inboxforge/inboxforge/pkg/metrics"
	"github.com/inboxforge/inboxforge/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("indexd", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index service", "index_dir", cfg.Index.Dir)

	st, err := store.Open(cfg.Index.Dir)
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("index store opened", "docs", st.DocCount(), "segments", st.SegmentCount())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		st.Instrument(m)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var cat *catalog.Catalog
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, catalog disabled", "error", err)
		} else {
			defer pg.Close()
			cat = catalog.New(pg)
			if err := cat.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure catalog schema", "error", err)
				os.Exit(1)
			}
			slog.Info("ingest catalog enabled", "host", cfg.Postgres.Host)
		}
	}

	st.StartMergeLoop(ctx, cfg.Index.MergeInterval, cfg.Index.MaxSegmentsBeforeMerge)
	slog.Info("merge loop started",
		"interval", cfg.Index.MergeInterval,
		"max_segments", cfg.Index.MaxSegmentsBeforeMerge,
	)

	consumer := ingest.NewConsumer(cfg.Kafka, indexer.New(st), cat, m)
	defer consumer.Close()

	checker := health.NewChecker()
	checker.Register("index_store", func(ctx context.Context) health.ComponentHealth {
		return health.Up(fmt.Sprintf("%d docs, %d segments", st.DocCount(), st.SegmentCount()))
	})
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		if cat == nil {
			return health.Degraded("not configured")
		}
		if err := cat.Ping(ctx); err != nil {
			return health.Degraded(err.Error())
		}
		return health.Up("")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status/{id}", statusHandler(cat))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		slog.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	slog.Info("consuming email records", "topic", cfg.Kafka.Topics.EmailIngest)
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}

	slog.Info("index service stopped")
}

// statusHandler reports a record's indexing status from the catalog.
func statusHandler(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cat == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "catalog is disabled"})
			return
		}
		entry, err := cat.Lookup(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "unknown record"})
				return
			}
			slog.Error("catalog lookup failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "catalog lookup failed"})
			return
		}
		json.NewEncoder(w).Encode(entry)
	}
}
