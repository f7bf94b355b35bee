// Package indexer turns email records into index postings. It runs every
// present field through the analyzer and commits the resulting batch to the
// index store in one atomic step.
package indexer

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inboxforge/inboxforge/internal/analyzer"
	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/mail"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

type Indexer struct {
	store  *store.Store
	logger *slog.Logger
}

func New(st *store.Store) *Indexer {
	return &Indexer{
		store:  st,
		logger: slog.Default().With("component", "indexer"),
	}
}

// Index analyzes and commits a batch of records, returning how many were
// indexed. A record without an identifier aborts the whole batch with
// ErrMalformedRecord before anything is committed; missing optional fields
// are skipped. When the same id appears twice in one batch, the later
// record wins, and re-indexing an id from an earlier batch replaces its
// prior postings for every field it supplies.
func (ix *Indexer) Index(ctx context.Context, records []mail.EmailRecord) (int, error) {
	for i, rec := range records {
		if rec.ID == "" {
			return 0, apperrors.Newf(apperrors.ErrMalformedRecord, http.StatusBadRequest,
				"record %d of %d has no identifier", i+1, len(records))
		}
	}
	deduped := dedupe(records)

	batch := index.Batch{Docs: make(map[string]index.DocMeta, len(deduped))}
	for _, rec := range deduped {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		appendTuples(&batch, index.FieldSubject, rec.ID, rec.Subject)
		appendTuples(&batch, index.FieldBody, rec.ID, bodyText(rec))
		appendTuples(&batch, index.FieldSender, rec.ID, rec.Sender)
		appendTuples(&batch, index.FieldRecipient, rec.ID, strings.Join(rec.Recipients, " "))
		batch.Docs[rec.ID] = index.DocMeta{
			Sender:     rec.Sender,
			Recipients: rec.Recipients,
			Subject:    rec.Subject,
			Date:       rec.Date,
		}
	}

	if err := ix.store.Commit(batch); err != nil {
		return 0, err
	}
	ix.logger.Info("records indexed",
		"records", len(deduped),
		"tuples", len(batch.Tuples),
	)
	return len(deduped), nil
}

// bodyText joins the plain body with the HTML body so HTML-only emails stay
// searchable; positions continue across the join.
func bodyText(rec mail.EmailRecord) string {
	switch {
	case rec.BodyText != "" && rec.BodyHTML != "":
		return rec.BodyText + " " + rec.BodyHTML
	case rec.BodyHTML != "":
		return rec.BodyHTML
	default:
		return rec.BodyText
	}
}

// appendTuples analyzes one supplied field. The field is marked touched
// as soon as its text is non-blank, so a re-index whose new text carries
// no indexable tokens still shadows the document's prior postings.
func appendTuples(batch *index.Batch, field index.Field, docID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	batch.Touch(field, docID)
	for _, tok := range analyzer.Analyze(text) {
		batch.Tuples = append(batch.Tuples, index.Tuple{
			Field: field,
			Term:  tok.Term,
			DocID: docID,
			Pos:   tok.Position,
		})
	}
}

// dedupe keeps the last occurrence of each id, preserving first-seen order.
func dedupe(records []mail.EmailRecord) []mail.EmailRecord {
	latest := make(map[string]mail.EmailRecord, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		if _, seen := latest[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		latest[rec.ID] = rec
	}
	out := make([]mail.EmailRecord, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
