package executor_test

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/indexer"
	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/internal/searcher/executor"
	"github.com/inboxforge/inboxforge/internal/searcher/parser"
)

func date(month, day int) time.Time {
	return time.Date(2023, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// corpus indexes a small fixed set of emails and returns a store snapshot.
func corpus(t *testing.T) *store.Snapshot {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	records := []mail.EmailRecord{
		{
			ID: "1", Subject: "Quarterly Report",
			Sender:   "alice@example.com",
			BodyText: "the quarterly numbers are final",
			Date:     date(3, 1),
		},
		{
			ID: "2", Subject: "Annual Meeting",
			Sender:   "bob@example.com",
			BodyText: "we will discuss the report quarterly cadence",
			Date:     date(6, 1),
		},
		{
			ID: "3", Subject: "Meeting notes",
			Sender:     "alice@example.com",
			Recipients: []string{"dave@example.com"},
			BodyText:   "quarterly report attached as discussed",
			Date:       date(6, 1),
		},
		{
			ID: "4", Subject: "Lunch plans",
			Sender:   "carol@example.com",
			BodyText: "meet at noon",
			Date:     date(1, 15),
		},
	}
	if _, err := indexer.New(s).Index(context.Background(), records); err != nil {
		t.Fatalf("indexing corpus: %v", err)
	}
	return s.Snapshot()
}

func search(t *testing.T, snap *store.Snapshot, query string, fields []index.Field, dates executor.DateRange, limit int) []string {
	t.Helper()
	node, err := parser.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	ids, err := executor.New(snap).Execute(context.Background(), node, fields, dates, limit)
	if err != nil {
		t.Fatalf("Execute(%q): %v", query, err)
	}
	return ids
}

func asSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedIDs(t *testing.T, snap *store.Snapshot, query string) []string {
	ids := search(t, snap, query, nil, executor.DateRange{}, 0)
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return sorted
}

func TestTermMatchesAcrossFields(t *testing.T) {
	snap := corpus(t)
	// "report" appears in subjects (1) and bodies (2, 3).
	got := sortedIDs(t, snap, "report")
	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("report = %v, want %v", got, want)
	}
}

func TestFieldRestriction(t *testing.T) {
	snap := corpus(t)
	got := search(t, snap, "report", []index.Field{index.FieldSubject}, executor.DateRange{}, 0)
	if want := []string{"1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("subject-restricted report = %v, want %v", got, want)
	}
}

func TestFieldScopeOverridesOuterFields(t *testing.T) {
	snap := corpus(t)
	// Outer restriction to subject, but the scope pins body.
	got := search(t, snap, "body:numbers", []index.Field{index.FieldSubject}, executor.DateRange{}, 0)
	if want := []string{"1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("body:numbers = %v, want %v", got, want)
	}
}

func TestBooleanLaws(t *testing.T) {
	snap := corpus(t)
	ra := asSet(search(t, snap, "quarterly", nil, executor.DateRange{}, 0))
	rb := asSet(search(t, snap, "meeting", nil, executor.DateRange{}, 0))

	and := asSet(search(t, snap, "quarterly AND meeting", nil, executor.DateRange{}, 0))
	for id := range and {
		if _, inA := ra[id]; !inA {
			t.Errorf("AND result %s not in Ra", id)
		}
		if _, inB := rb[id]; !inB {
			t.Errorf("AND result %s not in Rb", id)
		}
	}
	for id := range ra {
		_, inB := rb[id]
		_, inAnd := and[id]
		if inB != inAnd {
			t.Errorf("AND law violated for %s", id)
		}
	}

	or := asSet(search(t, snap, "quarterly OR meeting", nil, executor.DateRange{}, 0))
	union := make(map[string]struct{})
	for id := range ra {
		union[id] = struct{}{}
	}
	for id := range rb {
		union[id] = struct{}{}
	}
	if !reflect.DeepEqual(or, union) {
		t.Errorf("OR = %v, want %v", or, union)
	}

	not := asSet(search(t, snap, "quarterly NOT meeting", nil, executor.DateRange{}, 0))
	for id := range not {
		if _, inA := ra[id]; !inA {
			t.Errorf("NOT result %s not in Ra", id)
		}
		if _, inB := rb[id]; inB {
			t.Errorf("NOT result %s is in Rb", id)
		}
	}
	if len(not) != len(ra)-len(and) {
		t.Errorf("NOT size = %d, want %d", len(not), len(ra)-len(and))
	}
}

func TestPhraseExactness(t *testing.T) {
	snap := corpus(t)
	// Docs 1 and 3 contain "quarterly report" contiguously (subject and
	// body respectively); doc 2 has "report quarterly" reversed.
	got := sortedIDs(t, snap, `"quarterly report"`)
	if want := []string{"1", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf(`"quarterly report" = %v, want %v`, got, want)
	}

	if got := search(t, snap, `"report quarterly"`, nil, executor.DateRange{}, 0); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf(`"report quarterly" = %v, want [2]`, got)
	}
}

func TestPhraseDoesNotCrossFields(t *testing.T) {
	snap := corpus(t)
	// Doc 4's subject ends with "plans" and body starts with "meet"; the
	// words are adjacent only across the field boundary.
	if got := search(t, snap, `"plans meet"`, nil, executor.DateRange{}, 0); len(got) != 0 {
		t.Errorf(`"plans meet" matched across fields: %v`, got)
	}
}

func TestWildcardExpansion(t *testing.T) {
	snap := corpus(t)
	// meet* expands to meet (4) and meeting (2, 3).
	got := sortedIDs(t, snap, "meet*")
	if want := []string{"2", "3", "4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("meet* = %v, want %v", got, want)
	}

	// The expansion equals the union over the matching dictionary terms.
	union := make(map[string]struct{})
	for _, f := range index.Fields {
		for _, term := range snap.TermsWithPrefix(f, "meet") {
			for _, id := range search(t, snap, term, []index.Field{f}, executor.DateRange{}, 0) {
				union[id] = struct{}{}
			}
		}
	}
	if !reflect.DeepEqual(asSet(got), union) {
		t.Errorf("wildcard union mismatch: %v vs %v", asSet(got), union)
	}
}

func TestDateFilter(t *testing.T) {
	snap := corpus(t)
	from, to := date(2, 1), date(4, 1)
	got := search(t, snap, "quarterly", nil, executor.DateRange{Start: &from, End: &to}, 0)
	if want := []string{"1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("date-filtered quarterly = %v, want %v", got, want)
	}

	// Inclusive bounds: a document dated exactly at the edge matches.
	edge := date(3, 1)
	got = search(t, snap, "quarterly", nil, executor.DateRange{Start: &edge, End: &edge}, 0)
	if want := []string{"1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("edge date filter = %v, want %v", got, want)
	}

	// Empty intersection yields an empty result, not an error.
	past := date(1, 1)
	if got := search(t, snap, "quarterly", nil, executor.DateRange{End: &past}, 0); len(got) != 0 {
		t.Errorf("empty date window = %v, want empty", got)
	}
}

func TestOrderingAndLimit(t *testing.T) {
	snap := corpus(t)
	// Date descending, id ascending on ties: docs 2 and 3 share 2023-06-01.
	got := search(t, snap, "quarterly OR meeting OR lunch", nil, executor.DateRange{}, 0)
	if want := []string{"2", "3", "1", "4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ordering = %v, want %v", got, want)
	}

	got = search(t, snap, "quarterly OR meeting OR lunch", nil, executor.DateRange{}, 2)
	if want := []string{"2", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("limited = %v, want %v", got, want)
	}
}

func TestScenarioFromIngestToSearch(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	records := []mail.EmailRecord{
		{ID: "1", Subject: "Quarterly Report", Date: date(3, 1)},
		{ID: "2", Subject: "Annual Meeting", Date: date(6, 1)},
	}
	if _, err := indexer.New(s).Index(context.Background(), records); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	snap := s.Snapshot()

	if got := search(t, snap, "report", nil, executor.DateRange{}, 0); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("report = %v, want [1]", got)
	}
	if got := search(t, snap, "meet*", nil, executor.DateRange{}, 0); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("meet* = %v, want [2]", got)
	}
	// Ordered by descending date: the June meeting precedes the March report.
	if got := search(t, snap, "report OR meet*", nil, executor.DateRange{}, 0); !reflect.DeepEqual(got, []string{"2", "1"}) {
		t.Errorf("report OR meet* = %v, want [2 1]", got)
	}
}
