package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"filedex/internal/core/extract"
	"filedex/internal/core/tracker"
	"filedex/internal/core/walk"
	"filedex/internal/index/meta"
	"filedex/internal/index/pool"
	"filedex/internal/index/store"
	"filedex/internal/model"
)

// Indexer runs the scan cycles: full enumeration, targeted incremental
// updates from watcher hints, and periodic cleanup. All store writes go
// through the pool's single writer.
type Indexer struct {
	pool      *pool.Pool
	extractor *extract.Extractor
	tracker   *tracker.Tracker
	roots     []string
	walkOpts  walk.Options
	retention time.Duration
	log       *slog.Logger
}

type Options struct {
	Roots       []string
	WalkOptions walk.Options
	Retention   time.Duration
	Logger      *slog.Logger
}

// Stats summarizes one scan cycle.
type Stats struct {
	Scanned int           `json:"scanned"`
	Added   int           `json:"added"`
	Updated int           `json:"updated"`
	Moved   int           `json:"moved"`
	Deleted int           `json:"deleted"`
	Failed  int           `json:"failed"`
	Elapsed time.Duration `json:"-"`
}

func New(p *pool.Pool, x *extract.Extractor, tr *tracker.Tracker, opts Options) (*Indexer, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if x == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if tr == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("at least one watch directory is required")
	}
	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		roots = append(roots, filepath.ToSlash(abs))
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &Indexer{
		pool:      p,
		extractor: x,
		tracker:   tr,
		roots:     roots,
		walkOpts:  opts.WalkOptions,
		retention: retention,
		log:       log,
	}, nil
}

// FullScan enumerates every watch directory, diffs against the store, and
// reconciles: new and changed files are extracted and upserted, vanished
// records are correlated into movements or deletions.
func (ix *Indexer) FullScan(ctx context.Context) (Stats, error) {
	start := time.Now()

	entries, err := walk.ListFiles(ctx, ix.roots, ix.walkOpts)
	if err != nil {
		return Stats{}, fmt.Errorf("enumerate: %w", err)
	}

	var stored map[string]store.Meta
	err = ix.pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		stored, err = s.ListUnder(ix.roots)
		return err
	})
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Scanned: len(entries)}
	onDisk := make(map[string]walk.Entry, len(entries))
	var fresh, changed []walk.Entry
	for _, e := range entries {
		onDisk[e.Path] = e
		prev, ok := stored[e.Path]
		switch {
		case !ok:
			fresh = append(fresh, e)
		case prev.MTime != e.ModTime.Unix() || prev.SizeBytes != e.SizeBytes:
			changed = append(changed, e)
		}
	}

	var vanished []tracker.Vanished
	for p, m := range stored {
		if _, ok := onDisk[p]; !ok {
			vanished = append(vanished, tracker.Vanished{
				Path: p, Name: m.Name, SizeBytes: m.SizeBytes, Digest: m.Digest, Category: m.Category,
			})
		}
	}

	claimed, moved, deleted, err := ix.correlate(ctx, vanished, fresh, model.ReasonUnknown)
	if err != nil {
		return stats, err
	}
	stats.Moved = moved
	stats.Deleted = deleted

	for _, e := range fresh {
		if claimed[e.Path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if ok := ix.indexOne(ctx, e, &stats); ok {
			stats.Added++
		}
	}
	for _, e := range changed {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if ok := ix.indexOne(ctx, e, &stats); ok {
			stats.Updated++
		}
	}

	stats.Elapsed = time.Since(start)
	ix.log.Info("full scan done",
		"scanned", stats.Scanned, "added", stats.Added, "updated", stats.Updated,
		"moved", stats.Moved, "deleted", stats.Deleted, "failed", stats.Failed,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// IncrementalScan reconciles only the hinted paths, typically debounced
// watcher events. Hinted directories are re-enumerated shallowly through
// the same exclusion rules as the full scan.
func (ix *Indexer) IncrementalScan(ctx context.Context, hints []string) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	seen := map[string]bool{}
	var present []walk.Entry
	var missing []string
	for _, h := range hints {
		abs, err := filepath.Abs(strings.TrimSpace(h))
		if err != nil || abs == "" {
			continue
		}
		abs = filepath.ToSlash(abs)
		if seen[abs] || !ix.underRoots(abs) {
			continue
		}
		seen[abs] = true

		info, err := os.Stat(abs)
		switch {
		case err == nil && info.Mode().IsRegular():
			if !ix.admits(abs, info.Size()) {
				continue
			}
			present = append(present, walk.Entry{
				Path: abs, Name: filepath.Base(abs), SizeBytes: info.Size(), ModTime: info.ModTime(),
			})
		case err == nil && info.IsDir():
			sub, err := walk.ListFiles(ctx, []string{abs}, ix.walkOpts)
			if err != nil {
				return stats, err
			}
			present = append(present, sub...)
		case os.IsNotExist(err):
			missing = append(missing, abs)
		}
	}
	stats.Scanned = len(present) + len(missing)

	var vanished []tracker.Vanished
	var fresh, changed []walk.Entry
	err := ix.pool.WithReader(ctx, func(s *meta.Store) error {
		for _, p := range missing {
			rec, err := s.GetByPath(p)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			vanished = append(vanished, tracker.Vanished{
				Path: rec.Path, Name: rec.Name, SizeBytes: rec.SizeBytes,
				Digest: rec.ContentDigest, Category: rec.Category,
			})
		}
		for _, e := range present {
			rec, err := s.GetByPath(e.Path)
			if errors.Is(err, store.ErrNotFound) {
				fresh = append(fresh, e)
				continue
			}
			if err != nil {
				return err
			}
			if rec.ModifiedTime.Unix() != e.ModTime.Unix() || rec.SizeBytes != e.SizeBytes {
				changed = append(changed, e)
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	claimed, moved, deleted, err := ix.correlate(ctx, vanished, fresh, model.ReasonUserAction)
	if err != nil {
		return stats, err
	}
	stats.Moved = moved
	stats.Deleted = deleted

	for _, e := range fresh {
		if claimed[e.Path] {
			continue
		}
		if ok := ix.indexOne(ctx, e, &stats); ok {
			stats.Added++
		}
	}
	for _, e := range changed {
		if ok := ix.indexOne(ctx, e, &stats); ok {
			stats.Updated++
		}
	}

	stats.Elapsed = time.Since(start)
	if stats.Scanned > 0 {
		ix.log.Info("incremental scan done",
			"hints", len(hints), "added", stats.Added, "updated", stats.Updated,
			"moved", stats.Moved, "deleted", stats.Deleted, "failed", stats.Failed)
	}
	return stats, nil
}

// Cleanup drops records whose files are gone, prunes expired history and
// compacts the store.
func (ix *Indexer) Cleanup(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	var stored map[string]store.Meta
	err := ix.pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		stored, err = s.ListUnder(ix.roots)
		return err
	})
	if err != nil {
		return stats, err
	}

	var stale []store.Meta
	for p, m := range stored {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			stale = append(stale, m)
		}
	}

	err = ix.pool.WithWriter(ctx, func(s *meta.Store) error {
		for _, m := range stale {
			dr := model.DeletionRecord{
				OriginalPath: m.Path, Filename: m.Name, SizeBytes: m.SizeBytes,
				Category: m.Category, ContentDigest: m.Digest, DeletedAt: time.Now(),
				Reason: model.ReasonCleanup, Recoverable: m.Digest != "",
			}
			if _, err := s.DeleteWithHistory(m.Path, dr); err != nil {
				ix.log.Warn("stale record cleanup failed", "path", m.Path, "error", err)
				continue
			}
			stats.Deleted++
		}
		pruned, err := s.Cleanup(ix.retention)
		if err != nil {
			return err
		}
		ix.log.Info("cleanup done", "stale", stats.Deleted, "pruned_history", pruned)
		return nil
	})
	stats.Elapsed = time.Since(start)
	return stats, err
}

// correlate resolves vanished records against fresh files and applies the
// outcome under the writer.
func (ix *Indexer) correlate(ctx context.Context, vanished []tracker.Vanished, fresh []walk.Entry, reason model.DeletionReason) (map[string]bool, int, int, error) {
	if len(vanished) == 0 {
		return nil, 0, 0, nil
	}

	now := time.Now()
	appeared := make([]tracker.Appeared, 0, len(fresh))
	for _, e := range fresh {
		digest, err := extract.DigestFile(e.Path)
		if err != nil {
			digest = ""
		}
		// Discovery time is this pass; mtime survives a rename and says
		// nothing about when the path showed up.
		appeared = append(appeared, tracker.Appeared{
			Path: e.Path, Name: e.Name, SizeBytes: e.SizeBytes, Digest: digest,
			ModTime: e.ModTime, SeenAt: now,
		})
	}

	res := ix.tracker.Resolve(vanished, appeared, now, reason)
	err := ix.pool.WithWriter(ctx, func(s *meta.Store) error {
		return tracker.Apply(s, res, ix.log)
	})
	if err != nil {
		return res.Claimed, 0, 0, err
	}
	return res.Claimed, len(res.Movements), len(res.Deletions), nil
}

// indexOne extracts and upserts a single file. Extraction failures still
// index the metadata so the file stays findable by name.
func (ix *Indexer) indexOne(ctx context.Context, e walk.Entry, stats *Stats) bool {
	res, err := ix.extractor.Extract(ctx, e.Path)
	if err != nil && !errors.Is(err, extract.ErrExtractionFailed) {
		ix.log.Warn("extract failed", "path", e.Path, "error", err)
		stats.Failed++
		return false
	}
	if res.Failed {
		stats.Failed++
	}

	rec := model.FileRecord{
		Path:          e.Path,
		Name:          e.Name,
		Extension:     strings.ToLower(path.Ext(e.Name)),
		SizeBytes:     e.SizeBytes,
		ModifiedTime:  e.ModTime,
		Category:      res.Category,
		ContentDigest: res.Digest,
		ExtractedText: res.Text,
		Embedding:     res.Embedding,
		LastIndexedAt: time.Now(),
	}
	err = ix.pool.WithWriter(ctx, func(s *meta.Store) error {
		return s.Upsert(rec)
	})
	if err != nil {
		ix.log.Warn("upsert failed", "path", e.Path, "error", err)
		stats.Failed++
		return false
	}
	return true
}

func (ix *Indexer) underRoots(p string) bool {
	for _, root := range ix.roots {
		if p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

// admits rescreens a single hinted file with the walk rules.
func (ix *Indexer) admits(p string, size int64) bool {
	if ix.walkOpts.MaxFileSize > 0 && size > ix.walkOpts.MaxFileSize {
		return false
	}
	for _, root := range ix.roots {
		if p != root && !strings.HasPrefix(p, root+"/") {
			continue
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return false
		}
		f, err := walk.NewFilter(root, ix.walkOpts)
		if err != nil {
			return false
		}
		return f.ShouldInclude(filepath.ToSlash(rel), false)
	}
	return false
}
