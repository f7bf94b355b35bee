package store

import (
	"sort"

	"github.com/inboxforge/inboxforge/internal/index"
)

// Snapshot is an immutable read view over the sources and document metadata
// that existed when it was taken. Any number of snapshots may be read
// concurrently; later commits and merges never mutate one.
type Snapshot struct {
	sources []source
	meta    map[string]index.DocMeta
}

// GetPostings merges the term's postings across sources, newest commit
// first. A document re-indexed by a newer commit shadows its postings in
// every older source for that field.
func (sn *Snapshot) GetPostings(field index.Field, term string) (index.PostingList, error) {
	shadow := make(map[string]struct{})
	out := make(index.PostingList, 0)
	for i := len(sn.sources) - 1; i >= 0; i-- {
		postings, err := sn.sources[i].Postings(field, term)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			if _, shadowed := shadow[p.DocID]; !shadowed {
				out = append(out, p)
			}
		}
		for id := range sn.sources[i].Docs(field) {
			shadow[id] = struct{}{}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// TermsWithPrefix returns the sorted union of matching dictionary terms
// across all sources.
func (sn *Snapshot) TermsWithPrefix(field index.Field, prefix string) []string {
	seen := make(map[string]struct{})
	for _, src := range sn.sources {
		for _, term := range src.TermsWithPrefix(field, prefix) {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Meta returns the stored metadata for one document.
func (sn *Snapshot) Meta(docID string) (index.DocMeta, bool) {
	m, ok := sn.meta[docID]
	return m, ok
}

// AllDocs returns the id→metadata map backing this snapshot: the universe
// for NOT evaluation and the date filter. Callers must not mutate it.
func (sn *Snapshot) AllDocs() map[string]index.DocMeta {
	return sn.meta
}

// DocCount returns the number of documents visible to this snapshot.
func (sn *Snapshot) DocCount() int {
	return len(sn.meta)
}

// terms returns the sorted union of every term in the field across all
// sources, used by merges.
func (sn *Snapshot) terms(field index.Field) []string {
	seen := make(map[string]struct{})
	for _, src := range sn.sources {
		for _, term := range src.Terms(field) {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
