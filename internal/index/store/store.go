// Package store implements the durable index store: a merged base structure
// plus an append-only sequence of per-commit segments. Reads run against
// immutable snapshots; commits are single-writer and fail fast on conflict;
// compaction folds segments into a replacement base without disturbing
// readers.
package store

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/segment"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
	"github.com/inboxforge/inboxforge/pkg/metrics"
)

const (
	segmentsDir = "segments"
	currentFile = "CURRENT"
)

// source is one immutable postings provider: the merged base or a segment.
type source interface {
	Postings(index.Field, string) (index.PostingList, error)
	TermsWithPrefix(index.Field, string) []string
	Terms(index.Field) []string
	Docs(index.Field) map[string]struct{}
	Meta() map[string]index.DocMeta
	Close() error
}

// Store owns the four field indexes and the document metadata map.
type Store struct {
	dir    string
	writer *segment.Writer
	logger *slog.Logger

	mu      sync.RWMutex
	sources []source // oldest first; sources[0] may be the base
	meta    map[string]index.DocMeta
	retired []source // superseded by a merge; closed on Close
	nextSeq uint64
	baseGen uint64

	writing atomic.Bool
	metrics *metrics.Metrics
}

// Instrument attaches Prometheus collectors for segment and merge
// bookkeeping. Nil disables recording.
func (s *Store) Instrument(m *metrics.Metrics) {
	s.metrics = m
	if m != nil {
		m.SegmentCount.Set(float64(s.SegmentCount()))
	}
}

// Open loads the index store at dir, creating an empty one if the directory
// does not exist yet. Corrupt on-disk structures fail the open with
// ErrCorruptIndex.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, segmentsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	s := &Store{
		dir:    dir,
		writer: segment.NewWriter(filepath.Join(dir, segmentsDir)),
		logger: slog.Default().With("component", "index-store"),
		meta:   make(map[string]index.DocMeta),
	}
	if err := s.loadBase(); err != nil {
		return nil, err
	}
	if err := s.loadSegments(); err != nil {
		s.Close()
		return nil, err
	}
	for _, src := range s.sources {
		for id, m := range src.Meta() {
			s.meta[id] = m
		}
	}
	s.logger.Info("index store opened",
		"dir", dir,
		"sources", len(s.sources),
		"docs", len(s.meta),
	)
	return s, nil
}

func (s *Store) loadBase() error {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading CURRENT: %w", err)
	}
	gen := strings.TrimSpace(string(data))
	base, err := segment.OpenBase(filepath.Join(s.dir, gen))
	if err != nil {
		return err
	}
	s.sources = append(s.sources, base)
	fmt.Sscanf(gen, "base_%016x", &s.baseGen)
	return nil
}

func (s *Store) loadSegments() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, segmentsDir))
	if err != nil {
		return fmt.Errorf("reading segments directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".ifx") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		reader, err := segment.OpenReader(filepath.Join(s.dir, segmentsDir, name))
		if err != nil {
			return err
		}
		s.sources = append(s.sources, reader)
		if reader.Seq() >= s.nextSeq {
			s.nextSeq = reader.Seq() + 1
		}
	}
	return nil
}

// Commit atomically merges one batch into durable state as a new segment.
// Only one commit may be in flight; a concurrent attempt fails immediately
// with ErrWriteConflict.
func (s *Store) Commit(batch index.Batch) error {
	if !s.writing.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrWriteConflict, http.StatusConflict,
			"another commit is in flight")
	}
	defer s.writing.Store(false)

	if len(batch.Tuples) == 0 && len(batch.Docs) == 0 {
		return nil
	}

	builder := index.NewBuilder()
	for _, t := range batch.Tuples {
		builder.Add(t)
	}
	for f, ids := range batch.Touched {
		for _, id := range ids {
			builder.MarkDoc(f, id)
		}
	}
	fields := make([]segment.FieldData, 0, len(index.Fields))
	for _, f := range index.Fields {
		fields = append(fields, segment.FieldData{
			Field:   f,
			Entries: builder.Entries(f),
			Docs:    builder.Docs(f),
		})
	}

	seq := s.nextSeq
	name, err := s.writer.Write(seq, fields, batch.Docs)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(s.dir, segmentsDir, name))
	if err != nil {
		return fmt.Errorf("reopening new segment: %w", err)
	}

	s.mu.Lock()
	s.sources = append(s.sources, reader)
	s.meta = mergedMeta(s.meta, batch.Docs)
	s.nextSeq = seq + 1
	segments := len(s.sources)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SegmentCount.Set(float64(s.SegmentCount()))
	}
	s.logger.Info("batch committed",
		"segment", name,
		"tuples", len(batch.Tuples),
		"docs", len(batch.Docs),
		"active_sources", segments,
	)
	return nil
}

// mergedMeta returns a fresh map so readers holding the old one are never
// mutated under them.
func mergedMeta(old, delta map[string]index.DocMeta) map[string]index.DocMeta {
	merged := make(map[string]index.DocMeta, len(old)+len(delta))
	for id, m := range old {
		merged[id] = m
	}
	for id, m := range delta {
		merged[id] = m
	}
	return merged
}

// Snapshot captures a consistent read view: commits and merges that finish
// afterwards do not affect it.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sources := make([]source, len(s.sources))
	copy(sources, s.sources)
	return &Snapshot{sources: sources, meta: s.meta}
}

// GetPostings returns the merged posting list for (field, term) across the
// current snapshot. Absent terms yield an empty list, never an error.
func (s *Store) GetPostings(field index.Field, term string) (index.PostingList, error) {
	return s.Snapshot().GetPostings(field, term)
}

// TermsWithPrefix returns the sorted set of terms starting with prefix in
// the field's dictionaries.
func (s *Store) TermsWithPrefix(field index.Field, prefix string) []string {
	return s.Snapshot().TermsWithPrefix(field, prefix)
}

// Meta returns the stored metadata for one document.
func (s *Store) Meta(docID string) (index.DocMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[docID]
	return m, ok
}

// DocCount returns the number of documents in the index.
func (s *Store) DocCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// SegmentCount returns the number of unmerged segments (excluding the base).
func (s *Store) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, src := range s.sources {
		if _, ok := src.(*segment.Reader); ok {
			n++
		}
	}
	return n
}

// Close closes every live and retired source.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, src := range append(s.sources, s.retired...) {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.sources = nil
	s.retired = nil
	return firstErr
}
