package index

import "sort"

// Builder accumulates the tuples of one commit into per-field posting maps.
// It is not safe for concurrent use; the store serialises commits.
type Builder struct {
	fields map[Field]map[string]map[string]*Posting
	docs   map[Field]map[string]struct{}
}

func NewBuilder() *Builder {
	b := &Builder{
		fields: make(map[Field]map[string]map[string]*Posting, len(Fields)),
		docs:   make(map[Field]map[string]struct{}, len(Fields)),
	}
	for _, f := range Fields {
		b.fields[f] = make(map[string]map[string]*Posting)
		b.docs[f] = make(map[string]struct{})
	}
	return b
}

// Add records one term occurrence. Positions must arrive in increasing
// order per (field, term, document), which the analyzer guarantees.
func (b *Builder) Add(t Tuple) {
	terms := b.fields[t.Field]
	docs, ok := terms[t.Term]
	if !ok {
		docs = make(map[string]*Posting)
		terms[t.Term] = docs
	}
	p, ok := docs[t.DocID]
	if !ok {
		p = &Posting{DocID: t.DocID, Positions: make([]int, 0, 4)}
		docs[t.DocID] = p
	}
	p.Frequency++
	p.Positions = append(p.Positions, t.Pos)
	b.docs[t.Field][t.DocID] = struct{}{}
}

// MarkDoc puts the document into the field's shadow set without adding
// any postings. Used for supplied fields that produced no tokens.
func (b *Builder) MarkDoc(f Field, docID string) {
	b.docs[f][docID] = struct{}{}
}

// Entries returns the field's accumulated postings as term entries sorted
// by term, each posting list sorted by document id.
func (b *Builder) Entries(f Field) []TermEntry {
	terms := b.fields[f]
	entries := make([]TermEntry, 0, len(terms))
	for term, docs := range terms {
		postings := make(PostingList, 0, len(docs))
		for _, p := range docs {
			postings = append(postings, *p)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Docs returns the sorted ids of every document this commit touched in the
// given field. Newer segments use these sets to shadow a document's prior
// postings when it is re-indexed.
func (b *Builder) Docs(f Field) []string {
	set := b.docs[f]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether no tuples were added across all fields.
func (b *Builder) Empty() bool {
	for _, f := range Fields {
		if len(b.fields[f]) > 0 {
			return false
		}
	}
	return true
}
