package executor

import (
	"container/heap"
	"sort"
	"time"
)

type docEntry struct {
	id   string
	date time.Time
}

// before reports whether a sorts ahead of b: newer dates first, then id
// ascending so equal-date results are stable across runs.
func (a docEntry) before(b docEntry) bool {
	if !a.date.Equal(b.date) {
		return a.date.After(b.date)
	}
	return a.id < b.id
}

// order turns the matched set into a sorted id slice. With a positive
// limit it keeps a bounded min-heap of the current best entries instead of
// sorting the whole set.
func (e *Executor) order(matched map[string]struct{}, limit int) []string {
	entries := make([]docEntry, 0, len(matched))
	for id := range matched {
		entry := docEntry{id: id}
		if meta, ok := e.snap.Meta(id); ok {
			entry.date = meta.Date
		}
		entries = append(entries, entry)
	}

	if limit <= 0 || limit >= len(entries) {
		sort.Slice(entries, func(i, j int) bool { return entries[i].before(entries[j]) })
		ids := make([]string, len(entries))
		for i, entry := range entries {
			ids[i] = entry.id
		}
		return ids
	}

	h := &entryHeap{}
	heap.Init(h)
	for _, entry := range entries {
		if h.Len() < limit {
			heap.Push(h, entry)
			continue
		}
		if entry.before((*h)[0]) {
			(*h)[0] = entry
			heap.Fix(h, 0)
		}
	}

	ids := make([]string, h.Len())
	for i := len(ids) - 1; i >= 0; i-- {
		ids[i] = heap.Pop(h).(docEntry).id
	}
	return ids
}

// entryHeap is a min-heap keyed by result order, so the root is the worst
// of the retained entries and is the one evicted.
type entryHeap []docEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[j].before(h[i]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(docEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
