package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/indexer"
	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/internal/searcher"
	"github.com/inboxforge/inboxforge/internal/searcher/handler"
)

func newTestHandler(t *testing.T) *handler.Handler {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	records := []mail.EmailRecord{
		{ID: "1", Sender: "alice@example.com", Subject: "Quarterly Report", Date: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "2", Sender: "bob@example.com", Subject: "Annual Meeting", Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	if _, err := indexer.New(s).Index(context.Background(), records); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	return handler.New(searcher.NewEngine(s, 25, 500), nil, nil)
}

func doSearch(t *testing.T, h *handler.Handler, query string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?"+query, nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec, body := doSearch(t, h, "q=report+OR+meeting")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, body)
	}
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v, want 2", body["total"])
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["id"] != "2" {
		t.Errorf("first result = %v, want id 2", first)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	h := newTestHandler(t)
	rec, _ := doSearch(t, h, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchSyntaxErrorReportsOffset(t *testing.T) {
	h := newTestHandler(t)
	rec, body := doSearch(t, h, "q=report+AND")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %v", rec.Code, body)
	}
	if body["offset"].(float64) != 7 {
		t.Errorf("offset = %v, want 7", body["offset"])
	}
}

func TestSearchUnknownFieldParam(t *testing.T) {
	h := newTestHandler(t)
	rec, _ := doSearch(t, h, "q=report&fields=subject,folder")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchDateWindow(t *testing.T) {
	h := newTestHandler(t)

	rec, body := doSearch(t, h, "q=report+OR+meeting&from=2023-05-01T00:00:00Z&to=2023-07-01T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if body["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1", body["total"])
	}

	rec, _ = doSearch(t, h, "q=report&from=2023-07-01T00:00:00Z&to=2023-05-01T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted window status = %d, want 400", rec.Code)
	}

	rec, _ = doSearch(t, h, "q=report&from=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed date status = %d, want 400", rec.Code)
	}
}

func TestSearchBadLimit(t *testing.T) {
	h := newTestHandler(t)
	for _, limit := range []string{"0", "-5", "many"} {
		rec, _ := doSearch(t, h, "q=report&limit="+limit)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestCacheDisabledEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("CacheStats status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("CacheInvalidate status = %d, want 503", rec.Code)
	}
}
