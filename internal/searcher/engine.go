// Package searcher ties the query pipeline together: parse, snapshot,
// execute, resolve. One Engine serves concurrent searches against a shared
// index store; each search runs on its own immutable snapshot.
package searcher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/internal/searcher/executor"
	"github.com/inboxforge/inboxforge/internal/searcher/parser"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

// Options narrows a search. Zero value means all fields, no date filter,
// the engine's default limit.
type Options struct {
	Fields []index.Field
	Dates  executor.DateRange
	Limit  int
}

type Engine struct {
	store        *store.Store
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func NewEngine(st *store.Store, defaultLimit, maxResults int) *Engine {
	return &Engine{
		store:        st,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-engine"),
	}
}

// Search parses and runs query, returning stored result records ordered by
// date descending then id ascending.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]mail.ResultRecord, error) {
	start := time.Now()

	node, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if e.maxResults > 0 && limit > e.maxResults {
		limit = e.maxResults
	}

	snap := e.store.Snapshot()
	ids, err := executor.New(snap).Execute(ctx, node, opts.Fields, opts.Dates, limit)
	if err != nil {
		return nil, err
	}

	results, err := resolve(snap, ids)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search completed",
		"query", query,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// resolve maps matched ids to their stored metadata. An id present in
// postings but absent from the metadata table means the index is
// inconsistent, so the whole search fails rather than silently dropping
// the document.
func resolve(snap *store.Snapshot, ids []string) ([]mail.ResultRecord, error) {
	results := make([]mail.ResultRecord, 0, len(ids))
	for _, id := range ids {
		meta, ok := snap.Meta(id)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrMissingDocument,
				http.StatusInternalServerError,
				"document %q matched but has no stored metadata", id)
		}
		results = append(results, mail.ResultRecord{
			ID:         id,
			Sender:     meta.Sender,
			Recipients: meta.Recipients,
			Subject:    meta.Subject,
			Date:       meta.Date,
		})
	}
	return results, nil
}
