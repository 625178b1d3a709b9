package tracker

import (
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"filedex/internal/index/meta"
	"filedex/internal/model"
)

// Vanished is a stored record whose path no longer exists on disk.
type Vanished struct {
	Path      string
	Name      string
	SizeBytes int64
	Digest    string
	Category  model.Category
}

// Appeared is an on-disk file with no stored record yet. SeenAt is the
// wall-clock time the path was first discovered; a zero SeenAt means the
// current pass. ModTime is only a tie-breaker, never a window bound: a
// rename preserves the file's mtime.
type Appeared struct {
	Path      string
	Name      string
	SizeBytes int64
	Digest    string
	ModTime   time.Time
	SeenAt    time.Time
}

// Resolution is the outcome of correlating one scan's vanished and
// appeared sets. Claimed holds appeared paths consumed as movement
// destinations; the indexer must not insert fresh records for those.
type Resolution struct {
	Movements []model.MovementRecord
	Deletions []model.DeletionRecord
	Claimed   map[string]bool
}

// Tracker decides whether a vanished file was deleted or moved. A new file
// only counts as a movement destination when its path was discovered
// within the correlation window; paths seen longer ago are coincidental.
type Tracker struct {
	window time.Duration
	log    *slog.Logger
}

func New(window time.Duration, log *slog.Logger) *Tracker {
	if window <= 0 {
		window = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{window: window, log: log}
}

// Resolve correlates vanished records against appeared files. Digest
// matches always win over (name,size) matches; among equal candidates the
// same filename breaks the tie, then the most recent modification time.
// A (name,size) tie with no winner records a deletion, never a guess.
func (t *Tracker) Resolve(vanished []Vanished, appeared []Appeared, now time.Time, reason model.DeletionReason) Resolution {
	res := Resolution{Claimed: map[string]bool{}}
	if reason == "" {
		reason = model.ReasonUnknown
	}

	var fresh []Appeared
	for _, a := range appeared {
		if a.SeenAt.IsZero() || (now.Sub(a.SeenAt) <= t.window && a.SeenAt.Sub(now) <= t.window) {
			fresh = append(fresh, a)
		}
	}

	// Digest pass first so content-identical moves are never stolen by a
	// name collision.
	pending := make([]Vanished, 0, len(vanished))
	for _, v := range vanished {
		if v.Digest == "" {
			pending = append(pending, v)
			continue
		}
		match, ok := pickCandidate(fresh, res.Claimed, func(a Appeared) bool { return a.Digest == v.Digest }, v.Name)
		if !ok {
			pending = append(pending, v)
			continue
		}
		res.Claimed[match.Path] = true
		res.Movements = append(res.Movements, t.movement(v, match, now))
	}

	for _, v := range pending {
		candidates := collect(fresh, res.Claimed, func(a Appeared) bool {
			return a.Name == v.Name && a.SizeBytes == v.SizeBytes && v.SizeBytes > 0
		})
		switch len(candidates) {
		case 0:
			res.Deletions = append(res.Deletions, t.deletion(v, now, reason))
		case 1:
			res.Claimed[candidates[0].Path] = true
			res.Movements = append(res.Movements, t.movement(v, candidates[0], now))
		default:
			t.log.Info("ambiguous movement, recording deletion",
				"path", v.Path, "candidates", len(candidates))
			res.Deletions = append(res.Deletions, t.deletion(v, now, reason))
		}
	}
	return res
}

func pickCandidate(fresh []Appeared, claimed map[string]bool, match func(Appeared) bool, name string) (Appeared, bool) {
	candidates := collect(fresh, claimed, match)
	if len(candidates) == 0 {
		return Appeared{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	var sameName []Appeared
	for _, c := range candidates {
		if c.Name == name {
			sameName = append(sameName, c)
		}
	}
	if len(sameName) > 0 {
		candidates = sameName
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ModTime.Equal(candidates[j].ModTime) {
			return candidates[i].ModTime.After(candidates[j].ModTime)
		}
		return candidates[i].Path < candidates[j].Path
	})
	return candidates[0], true
}

func collect(fresh []Appeared, claimed map[string]bool, match func(Appeared) bool) []Appeared {
	var out []Appeared
	for _, a := range fresh {
		if claimed[a.Path] || !match(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (t *Tracker) movement(v Vanished, a Appeared, now time.Time) model.MovementRecord {
	mt, why := InferMovementType(v.Path, a.Path)
	return model.MovementRecord{
		OriginalPath: v.Path,
		NewPath:      a.Path,
		Filename:     v.Name,
		SizeBytes:    v.SizeBytes,
		MovementType: mt,
		Reason:       why,
		MovedAt:      now,
	}
}

func (t *Tracker) deletion(v Vanished, now time.Time, reason model.DeletionReason) model.DeletionRecord {
	return model.DeletionRecord{
		OriginalPath:  v.Path,
		Filename:      v.Name,
		SizeBytes:     v.SizeBytes,
		Category:      v.Category,
		ContentDigest: v.Digest,
		DeletedAt:     now,
		Reason:        reason,
		// A retained digest is enough to recognize the content if it
		// resurfaces.
		Recoverable: v.Digest != "",
	}
}

// InferMovementType classifies a move from keywords in the destination
// path segments.
func InferMovementType(oldPath, newPath string) (model.MovementType, string) {
	dest := strings.ToLower(filepath.ToSlash(newPath))
	for _, seg := range strings.Split(path.Dir(dest), "/") {
		switch {
		case strings.Contains(seg, "archive"):
			return model.MoveArchive, "moved into an archive directory"
		case strings.Contains(seg, "backup"):
			return model.MoveBackup, "moved into a backup directory"
		case seg == "tmp" || seg == "temp" || strings.Contains(seg, "trash") || seg == "old":
			return model.MoveReorganize, "moved into a staging directory"
		}
	}
	if filepath.ToSlash(filepath.Dir(oldPath)) != filepath.ToSlash(filepath.Dir(newPath)) {
		return model.MoveReorganize, "moved between directories"
	}
	return model.MoveUnknown, "renamed in place"
}

// Apply writes a resolution to the store. Movements rename records in
// place; deletions remove them with history. Per-entry failures are
// logged and the rest still applies.
func Apply(s *meta.Store, res Resolution, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	var firstErr error
	for _, mr := range res.Movements {
		if err := s.Rename(mr.OriginalPath, mr.NewPath, mr); err != nil {
			log.Warn("movement apply failed", "from", mr.OriginalPath, "to", mr.NewPath, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, dr := range res.Deletions {
		if _, err := s.DeleteWithHistory(dr.OriginalPath, dr); err != nil {
			log.Warn("deletion apply failed", "path", dr.OriginalPath, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
