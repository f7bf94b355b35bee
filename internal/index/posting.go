package index

import "time"

// Posting records every occurrence of one term in one (field, document)
// pair. Positions are zero-based token offsets, strictly increasing.
type Posting struct {
	DocID     string `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p"`
}

type PostingList []Posting

// TermEntry pairs a term with its postings, the unit serialised into
// segment dictionaries.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocMeta is the stored per-document metadata: everything the executor's
// date filter and the result resolver need without re-reading postings.
type DocMeta struct {
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Date       time.Time `json:"date"`
}

// Tuple is one (field, term, document, position) occurrence emitted by the
// indexer.
type Tuple struct {
	Field Field
	Term  string
	DocID string
	Pos   int
}

// Batch is the atomic unit handed to the store's Commit: all postings
// tuples for a set of records, their metadata entries, and the
// (field, document) pairs the commit supplies. Touched is tracked
// separately from Tuples: a supplied field whose text analyzes to zero
// tokens still shadows the document's prior postings in that field.
type Batch struct {
	Tuples  []Tuple
	Docs    map[string]DocMeta
	Touched map[Field][]string
}

// Touch marks the field as supplied for the document in this commit.
func (b *Batch) Touch(f Field, docID string) {
	if b.Touched == nil {
		b.Touched = make(map[Field][]string, len(Fields))
	}
	b.Touched[f] = append(b.Touched[f], docID)
}
