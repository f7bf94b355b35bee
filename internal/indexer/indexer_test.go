package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/mail"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func docIDs(t *testing.T, s *store.Store, field index.Field, term string) []string {
	t.Helper()
	postings, err := s.GetPostings(field, term)
	if err != nil {
		t.Fatalf("GetPostings(%s, %q): %v", field, term, err)
	}
	ids := make([]string, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.DocID)
	}
	return ids
}

func TestIndexRecord(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)

	n, err := ix.Index(context.Background(), []mail.EmailRecord{{
		ID:         "msg-1",
		Sender:     "alice@example.com",
		Recipients: []string{"bob@example.com", "carol@example.com"},
		Subject:    "Quarterly Report",
		BodyText:   "Numbers attached.",
		Date:       time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 1 {
		t.Errorf("indexed %d records, want 1", n)
	}

	checks := []struct {
		field index.Field
		term  string
	}{
		{index.FieldSubject, "quarterly"},
		{index.FieldBody, "numbers"},
		{index.FieldSender, "alice"},
		{index.FieldRecipient, "carol"},
	}
	for _, c := range checks {
		if got := docIDs(t, s, c.field, c.term); len(got) != 1 || got[0] != "msg-1" {
			t.Errorf("%s:%s docs = %v, want [msg-1]", c.field, c.term, got)
		}
	}

	meta, ok := s.Meta("msg-1")
	if !ok {
		t.Fatal("metadata missing for msg-1")
	}
	if meta.Subject != "Quarterly Report" || meta.Sender != "alice@example.com" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestIndexMissingIDAbortsBatch(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)

	records := []mail.EmailRecord{
		{ID: "msg-1", Subject: "first"},
		{Subject: "no identifier"},
	}
	n, err := ix.Index(context.Background(), records)
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("Index = %v, want ErrMalformedRecord", err)
	}
	if n != 0 {
		t.Errorf("indexed %d records from an aborted batch", n)
	}
	// Nothing from the batch reached the store.
	if got := docIDs(t, s, index.FieldSubject, "first"); len(got) != 0 {
		t.Errorf("partial batch committed: %v", got)
	}
	if s.DocCount() != 0 {
		t.Errorf("DocCount = %d, want 0", s.DocCount())
	}
}

func TestIndexMissingFieldsSkipped(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)

	n, err := ix.Index(context.Background(), []mail.EmailRecord{{
		ID:      "msg-1",
		Subject: "subject only",
	}})
	if err != nil || n != 1 {
		t.Fatalf("Index = (%d, %v), want (1, nil)", n, err)
	}
	if got := docIDs(t, s, index.FieldSubject, "subject"); len(got) != 1 {
		t.Errorf("subject not indexed: %v", got)
	}
}

func TestIndexDuplicateIDsLastWins(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)

	n, err := ix.Index(context.Background(), []mail.EmailRecord{
		{ID: "msg-1", Subject: "old subject"},
		{ID: "msg-1", Subject: "new subject"},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 1 {
		t.Errorf("indexed %d records, want 1 after dedupe", n)
	}
	if got := docIDs(t, s, index.FieldSubject, "old"); len(got) != 0 {
		t.Errorf("earlier duplicate survived: %v", got)
	}
	if got := docIDs(t, s, index.FieldSubject, "new"); len(got) != 1 {
		t.Errorf("later duplicate missing: %v", got)
	}
}

func TestIndexHTMLBodySearchable(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)

	if _, err := ix.Index(context.Background(), []mail.EmailRecord{{
		ID:       "msg-1",
		BodyHTML: "<p>invoice overdue</p>",
	}}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if got := docIDs(t, s, index.FieldBody, "invoice"); len(got) != 1 {
		t.Errorf("html body not searchable: %v", got)
	}
}

func TestReindexReplacesDocument(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)
	ctx := context.Background()

	if _, err := ix.Index(ctx, []mail.EmailRecord{{ID: "msg-1", Subject: "quarterly report"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Index(ctx, []mail.EmailRecord{{ID: "msg-1", Subject: "annual meeting"}}); err != nil {
		t.Fatal(err)
	}

	if got := docIDs(t, s, index.FieldSubject, "report"); len(got) != 0 {
		t.Errorf("stale postings remain: %v", got)
	}
	if got := docIDs(t, s, index.FieldSubject, "annual"); len(got) != 1 {
		t.Errorf("new postings missing: %v", got)
	}
	if s.DocCount() != 1 {
		t.Errorf("DocCount = %d, want 1", s.DocCount())
	}
}

func TestReindexTokenlessFieldShadowsPostings(t *testing.T) {
	s := newTestStore(t)
	ix := New(s)
	ctx := context.Background()

	if _, err := ix.Index(ctx, []mail.EmailRecord{{ID: "msg-1", Subject: "quarterly report"}}); err != nil {
		t.Fatal(err)
	}
	// The new subject is supplied but analyzes to zero tokens; the old
	// postings must still be replaced.
	if _, err := ix.Index(ctx, []mail.EmailRecord{{ID: "msg-1", Subject: "!!!"}}); err != nil {
		t.Fatal(err)
	}

	for _, term := range []string{"quarterly", "report"} {
		if got := docIDs(t, s, index.FieldSubject, term); len(got) != 0 {
			t.Errorf("stale subject postings for %q remain: %v", term, got)
		}
	}

	if err := s.Merge(); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := docIDs(t, s, index.FieldSubject, "report"); len(got) != 0 {
		t.Errorf("stale postings survived the merge: %v", got)
	}
}
