// Package executor evaluates query ASTs against an index store snapshot.
// Evaluation is pure set algebra over posting lists, followed by an
// inclusive date-range post-filter and deterministic ordering: date
// descending, then document id ascending. There is no relevance scoring.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/store"
	"github.com/inboxforge/inboxforge/internal/searcher/parser"
)

// DateRange filters results to dates within [Start, End] inclusive. Either
// side may be nil for an open end.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

type Executor struct {
	snap   *store.Snapshot
	logger *slog.Logger
}

func New(snap *store.Snapshot) *Executor {
	return &Executor{
		snap:   snap,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates the AST restricted to the given fields (all four when
// empty), applies the date filter, and returns matching document ids
// ordered by descending date with ties broken by ascending id. A limit of
// zero returns everything.
func (e *Executor) Execute(ctx context.Context, node parser.Node, fields []index.Field, dates DateRange, limit int) ([]string, error) {
	if len(fields) == 0 {
		fields = index.Fields
	}
	matched, err := e.eval(ctx, node, fields)
	if err != nil {
		return nil, err
	}
	candidates := len(matched)
	if !dates.IsZero() {
		for id := range matched {
			meta, ok := e.snap.Meta(id)
			if !ok || !dates.Contains(meta.Date) {
				delete(matched, id)
			}
		}
	}
	ids := e.order(matched, limit)
	e.logger.Debug("query executed",
		"fields", fields,
		"candidates", candidates,
		"results", len(ids),
	)
	return ids, nil
}

func (e *Executor) eval(ctx context.Context, node parser.Node, fields []index.Field) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case parser.Term:
		return e.termDocs(fields, n.Value)
	case parser.Phrase:
		out := make(map[string]struct{})
		for _, f := range fields {
			if err := e.phraseInField(f, n.Terms, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case parser.Wildcard:
		out := make(map[string]struct{})
		for _, f := range fields {
			for _, term := range e.snap.TermsWithPrefix(f, n.Prefix) {
				docs, err := e.termDocs([]index.Field{f}, term)
				if err != nil {
					return nil, err
				}
				for id := range docs {
					out[id] = struct{}{}
				}
			}
		}
		return out, nil
	case parser.And:
		return e.evalAnd(ctx, n.Children, fields)
	case parser.Or:
		out := make(map[string]struct{})
		for _, child := range n.Children {
			docs, err := e.eval(ctx, child, fields)
			if err != nil {
				return nil, err
			}
			for id := range docs {
				out[id] = struct{}{}
			}
		}
		return out, nil
	case parser.Not:
		excluded, err := e.eval(ctx, n.Expr, fields)
		if err != nil {
			return nil, err
		}
		out := make(map[string]struct{})
		for id := range e.snap.AllDocs() {
			if _, ok := excluded[id]; !ok {
				out[id] = struct{}{}
			}
		}
		return out, nil
	case parser.FieldScope:
		// A scope fixes the field for its whole subtree, whatever the
		// caller's filter says.
		return e.eval(ctx, n.Expr, []index.Field{n.Field})
	default:
		return nil, fmt.Errorf("unhandled query node %T", node)
	}
}

// evalAnd intersects children starting from the smallest set.
func (e *Executor) evalAnd(ctx context.Context, children []parser.Node, fields []index.Field) (map[string]struct{}, error) {
	sets := make([]map[string]struct{}, len(children))
	for i, child := range children {
		docs, err := e.eval(ctx, child, fields)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return map[string]struct{}{}, nil
		}
		sets[i] = docs
	}
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })
	out := make(map[string]struct{}, len(sets[0]))
	for id := range sets[0] {
		out[id] = struct{}{}
	}
	for _, set := range sets[1:] {
		for id := range out {
			if _, ok := set[id]; !ok {
				delete(out, id)
			}
		}
	}
	return out, nil
}

func (e *Executor) termDocs(fields []index.Field, term string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, f := range fields {
		postings, err := e.snap.GetPostings(f, term)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			out[p.DocID] = struct{}{}
		}
	}
	return out, nil
}

// phraseInField adds every document where terms appear contiguously and in
// order within field. Positions are per-field token offsets, so a phrase
// never straddles two fields.
func (e *Executor) phraseInField(field index.Field, terms []string, out map[string]struct{}) error {
	positions := make([]map[string][]int, len(terms))
	for i, term := range terms {
		postings, err := e.snap.GetPostings(field, term)
		if err != nil {
			return err
		}
		if len(postings) == 0 {
			return nil
		}
		byDoc := make(map[string][]int, len(postings))
		for _, p := range postings {
			byDoc[p.DocID] = p.Positions
		}
		positions[i] = byDoc
	}

candidates:
	for id, starts := range positions[0] {
		for i := 1; i < len(positions); i++ {
			if _, ok := positions[i][id]; !ok {
				continue candidates
			}
		}
		for _, start := range starts {
			if phraseAt(positions, id, start) {
				out[id] = struct{}{}
				break
			}
		}
	}
	return nil
}

// phraseAt reports whether every term i occurs at position start+i in doc.
func phraseAt(positions []map[string][]int, doc string, start int) bool {
	for i := 1; i < len(positions); i++ {
		pos := positions[i][doc]
		want := start + i
		j := sort.SearchInts(pos, want)
		if j >= len(pos) || pos[j] != want {
			return false
		}
	}
	return true
}
