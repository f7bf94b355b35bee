package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/internal/searcher"
	"github.com/inboxforge/inboxforge/internal/searcher/cache"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
	"github.com/inboxforge/inboxforge/pkg/logger"
	"github.com/inboxforge/inboxforge/pkg/metrics"
)

type Handler struct {
	engine  *searcher.Engine
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(engine *searcher.Engine, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:  engine,
		cache:   queryCache,
		metrics: m,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Query    string              `json:"query"`
	Total    int                 `json:"total"`
	Results  []mail.ResultRecord `json:"results"`
	CacheHit bool                `json:"cache_hit"`
}

// Search answers GET /api/v1/search. Parameters: q (required), fields
// (comma-separated subset of subject,body,sender,recipient), from and to
// (RFC 3339, either side optional), limit.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var results []mail.ResultRecord
	cacheHit := false
	if h.cache != nil {
		results, cacheHit, err = h.cache.GetOrCompute(ctx, query, opts, func() ([]mail.ResultRecord, error) {
			return h.engine.Search(ctx, query, opts)
		})
	} else {
		results, err = h.engine.Search(ctx, query, opts)
	}
	if err != nil {
		h.writeSearchError(w, log, query, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveQuery(time.Since(start), cacheHit)
	}
	log.Info("search completed",
		"query", query,
		"total", len(results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if results == nil {
		results = []mail.ResultRecord{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:    query,
		Total:    len(results),
		Results:  results,
		CacheHit: cacheHit,
	})
}

func parseOptions(r *http.Request) (searcher.Options, error) {
	var opts searcher.Options
	q := r.URL.Query()

	if raw := q.Get("fields"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			f, ok := index.ParseField(strings.TrimSpace(name))
			if !ok {
				return opts, fmt.Errorf("unknown field %q", strings.TrimSpace(name))
			}
			opts.Fields = append(opts.Fields, f)
		}
	}

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, fmt.Errorf("'from' must be RFC 3339: %v", err)
		}
		opts.Dates.Start = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, fmt.Errorf("'to' must be RFC 3339: %v", err)
		}
		opts.Dates.End = &t
	}
	if opts.Dates.Start != nil && opts.Dates.End != nil && opts.Dates.End.Before(*opts.Dates.Start) {
		return opts, fmt.Errorf("'to' is before 'from'")
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("limit must be a positive integer")
		}
		opts.Limit = n
	}
	return opts, nil
}

// writeSearchError maps engine errors onto HTTP statuses and, for syntax
// errors, includes the byte offset so clients can point at the problem.
func (h *Handler) writeSearchError(w http.ResponseWriter, log *slog.Logger, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		log.Error("search failed", "query", query, "error", err)
	} else {
		log.Debug("search rejected", "query", query, "error", err)
	}

	body := map[string]any{"error": err.Error()}
	var synErr *apperrors.SyntaxError
	if errors.As(err, &synErr) {
		body["offset"] = synErr.Offset
	}
	var fieldErr *apperrors.UnknownFieldError
	if errors.As(err, &fieldErr) {
		body["offset"] = fieldErr.Offset
		body["field"] = fieldErr.Name
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
