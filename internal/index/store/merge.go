package store

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/inboxforge/inboxforge/internal/index"
	"github.com/inboxforge/inboxforge/internal/index/segment"
	apperrors "github.com/inboxforge/inboxforge/pkg/errors"
)

// Merge folds every segment into a replacement base structure and retires
// the merged files. It takes the writer slot, so it never runs concurrently
// with a commit; readers keep their snapshots and are swapped to the new
// base only once it is complete.
func (s *Store) Merge() error {
	if !s.writing.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrWriteConflict, http.StatusConflict,
			"another commit is in flight")
	}
	defer s.writing.Store(false)

	if s.SegmentCount() == 0 {
		return nil
	}

	start := time.Now()
	err := s.merge(start)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.MergesTotal.WithLabelValues(status).Inc()
		if err == nil {
			s.metrics.MergeDuration.Observe(time.Since(start).Seconds())
			s.metrics.SegmentCount.Set(float64(s.SegmentCount()))
		}
	}
	return err
}

func (s *Store) merge(start time.Time) error {
	snap := s.Snapshot()

	fields := make([]segment.FieldData, 0, len(index.Fields))
	for _, f := range index.Fields {
		entries := make([]index.TermEntry, 0)
		for _, term := range snap.terms(f) {
			postings, err := snap.GetPostings(f, term)
			if err != nil {
				return fmt.Errorf("merging %s term %q: %w", f, term, err)
			}
			// Fully shadowed terms disappear in the merged base.
			if len(postings) > 0 {
				entries = append(entries, index.TermEntry{Term: term, Postings: postings})
			}
		}
		fields = append(fields, segment.FieldData{Field: f, Entries: entries})
	}

	gen := s.baseGen + 1
	genName := fmt.Sprintf("base_%016x", gen)
	if err := segment.WriteBase(filepath.Join(s.dir, genName), fields, snap.meta); err != nil {
		return fmt.Errorf("writing merged base: %w", err)
	}
	if err := s.writeCurrent(genName); err != nil {
		return err
	}
	base, err := segment.OpenBase(filepath.Join(s.dir, genName))
	if err != nil {
		return fmt.Errorf("reopening merged base: %w", err)
	}

	s.mu.Lock()
	old := s.sources
	s.retired = append(s.retired, old...)
	s.sources = []source{base}
	prevGen := s.baseGen
	s.baseGen = gen
	s.mu.Unlock()

	// Retired files may still be held open by live snapshots; unlinking is
	// safe, closing is not.
	for _, src := range old {
		if reader, ok := src.(*segment.Reader); ok {
			if err := os.Remove(reader.Path()); err != nil {
				s.logger.Warn("removing merged segment", "path", reader.Path(), "error", err)
			}
		}
	}
	if len(old) > 0 && !isSegment(old[0]) {
		prevName := fmt.Sprintf("base_%016x", prevGen)
		if err := os.RemoveAll(filepath.Join(s.dir, prevName)); err != nil {
			s.logger.Warn("removing old base", "gen", prevName, "error", err)
		}
	}

	s.logger.Info("segments merged",
		"generation", genName,
		"merged_sources", len(old),
		"docs", len(snap.meta),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func isSegment(src source) bool {
	_, ok := src.(*segment.Reader)
	return ok
}

func (s *Store) writeCurrent(gen string) error {
	path := filepath.Join(s.dir, currentFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing CURRENT: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming CURRENT: %w", err)
	}
	return nil
}

// StartMergeLoop compacts segments in the background whenever their count
// reaches maxSegments, checking every interval. It stops when ctx is done.
func (s *Store) StartMergeLoop(ctx context.Context, interval time.Duration, maxSegments int) {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxSegments <= 0 {
		maxSegments = 8
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("merge loop stopping")
				return
			case <-ticker.C:
				if s.SegmentCount() < maxSegments {
					continue
				}
				if err := s.Merge(); err != nil {
					s.logger.Error("background merge failed", "error", err)
				}
			}
		}
	}()
}
