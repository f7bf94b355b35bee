package index

import (
	"reflect"
	"testing"
)

func TestBuilderEntriesSorted(t *testing.T) {
	b := NewBuilder()
	b.Add(Tuple{FieldSubject, "zebra", "doc2", 0})
	b.Add(Tuple{FieldSubject, "apple", "doc1", 0})
	b.Add(Tuple{FieldSubject, "apple", "doc3", 1})

	entries := b.Entries(FieldSubject)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Term != "apple" || entries[1].Term != "zebra" {
		t.Errorf("entries not sorted by term: %q, %q", entries[0].Term, entries[1].Term)
	}
	apple := entries[0].Postings
	if len(apple) != 2 || apple[0].DocID != "doc1" || apple[1].DocID != "doc3" {
		t.Errorf("postings not sorted by doc id: %+v", apple)
	}
}

func TestBuilderAccumulatesPositions(t *testing.T) {
	b := NewBuilder()
	b.Add(Tuple{FieldBody, "go", "doc1", 2})
	b.Add(Tuple{FieldBody, "go", "doc1", 7})
	b.Add(Tuple{FieldBody, "go", "doc1", 11})

	entries := b.Entries(FieldBody)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	p := entries[0].Postings[0]
	if p.Frequency != 3 {
		t.Errorf("frequency = %d, want 3", p.Frequency)
	}
	if want := []int{2, 7, 11}; !reflect.DeepEqual(p.Positions, want) {
		t.Errorf("positions = %v, want %v", p.Positions, want)
	}
}

func TestBuilderDocsPerField(t *testing.T) {
	b := NewBuilder()
	b.Add(Tuple{FieldSubject, "hello", "doc-b", 0})
	b.Add(Tuple{FieldSubject, "world", "doc-a", 0})
	b.Add(Tuple{FieldSender, "alice", "doc-a", 0})

	if got, want := b.Docs(FieldSubject), []string{"doc-a", "doc-b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Docs(subject) = %v, want %v", got, want)
	}
	if got := b.Docs(FieldBody); len(got) != 0 {
		t.Errorf("Docs(body) = %v, want empty", got)
	}
}

func TestBuilderMarkDocWithoutTuples(t *testing.T) {
	b := NewBuilder()
	b.MarkDoc(FieldSubject, "doc-a")

	if got, want := b.Docs(FieldSubject), []string{"doc-a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Docs(subject) = %v, want %v", got, want)
	}
	if entries := b.Entries(FieldSubject); len(entries) != 0 {
		t.Errorf("Entries(subject) = %v, want none", entries)
	}
}

func TestBuilderEmpty(t *testing.T) {
	b := NewBuilder()
	if !b.Empty() {
		t.Error("fresh builder should be empty")
	}
	b.Add(Tuple{FieldRecipient, "bob", "doc1", 0})
	if b.Empty() {
		t.Error("builder with a tuple should not be empty")
	}
}

func TestParseField(t *testing.T) {
	for _, name := range []string{"subject", "Body", "SENDER", "Recipient"} {
		if _, ok := ParseField(name); !ok {
			t.Errorf("ParseField(%q) not recognised", name)
		}
	}
	if _, ok := ParseField("attachment"); ok {
		t.Error("ParseField accepted a field outside the indexed set")
	}
}
