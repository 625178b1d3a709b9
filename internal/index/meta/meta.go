package meta

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filedex/internal/index/lexical"
	"filedex/internal/index/sqlite"
	"filedex/internal/index/store"
	"filedex/internal/model"
)

// ErrStoreUnavailable means the persistent store cannot be reached at all.
// Unlike per-stage failures this is a hard error for the current request.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store is the metadata store: the single persistent source of truth for
// file records, the lexical inverted index, embeddings and history. A
// record update and its derived entries commit as one logical transaction:
// SQLite first (records + embedding + history atomically), then the bleve
// document. A bleve failure surfaces as an error so the scan retries the
// path on the next cycle.
type Store struct {
	db  *sqlite.Store
	lex *lexical.Index
	log *slog.Logger
}

func Open(dbPath, lexicalPath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	lex, err := lexical.Open(lexicalPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Store{db: db, lex: lex, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.lex != nil {
		if err := s.lex.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping reports store reachability for health checks.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert writes the record and rebuilds its derived entries.
func (s *Store) Upsert(rec model.FileRecord) error {
	if s == nil {
		return ErrStoreUnavailable
	}
	if err := s.db.UpsertFile(rec); err != nil {
		return err
	}
	if len(rec.Embedding) == 0 && rec.ExtractedText == "" {
		// Metadata-only records may have lost a previously extracted
		// embedding (file content changed and re-extraction failed).
		_ = s.db.DeleteEmbedding(rec.Path)
	}
	if err := s.lex.Upsert(rec); err != nil {
		return fmt.Errorf("lexical upsert %s: %w", rec.Path, err)
	}
	return nil
}

// Delete removes a record and its derived entries with no history entry.
// Used only for paths that should never have been indexed (exclusions).
func (s *Store) Delete(path string) (model.FileRecord, error) {
	rec, err := s.db.DeleteFile(path)
	if err != nil {
		return model.FileRecord{}, err
	}
	if err := s.lex.Delete(rec.Path); err != nil {
		s.log.Warn("lexical delete failed", "path", rec.Path, "error", err)
	}
	return rec, nil
}

// DeleteWithHistory removes the record and appends the deletion record in
// one logical transaction.
func (s *Store) DeleteWithHistory(path string, dr model.DeletionRecord) (model.FileRecord, error) {
	rec, err := s.db.DeleteWithHistory(path, dr)
	if err != nil {
		return model.FileRecord{}, err
	}
	if err := s.lex.Delete(rec.Path); err != nil {
		s.log.Warn("lexical delete failed", "path", rec.Path, "error", err)
	}
	return rec, nil
}

// Rename updates the record's path in place and appends the movement
// record. The lexical document follows the record to its new key.
func (s *Store) Rename(oldPath, newPath string, mr model.MovementRecord) error {
	if err := s.db.RenameWithHistory(oldPath, newPath, mr); err != nil {
		return err
	}
	rec, err := s.db.GetByPath(newPath)
	if err != nil {
		return err
	}
	if err := s.lex.Rename(oldPath, rec); err != nil {
		return fmt.Errorf("lexical rename %s: %w", oldPath, err)
	}
	return nil
}

func (s *Store) GetByPath(path string) (model.FileRecord, error) {
	return s.db.GetByPath(path)
}

// LexicalSearch ranks by inverted-index relevance and hydrates hits from
// the record table. Index entries whose record vanished mid-flight are
// dropped rather than surfaced as dangling results.
func (s *Store) LexicalSearch(query string, limit int) ([]model.Hit, error) {
	raw, err := s.lex.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return s.hydrate(raw)
}

// SemanticSearch ranks by normalized cosine similarity.
func (s *Store) SemanticSearch(vector []float32, limit int) ([]model.Hit, error) {
	raw, err := s.db.SemanticSearch(vector, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]store.LexicalHit, len(raw))
	for i, h := range raw {
		hits[i] = store.LexicalHit{Path: h.Path, Score: h.Score}
	}
	return s.hydrate(hits)
}

func (s *Store) hydrate(raw []store.LexicalHit) ([]model.Hit, error) {
	out := make([]model.Hit, 0, len(raw))
	for _, h := range raw {
		rec, err := s.db.GetByPath(h.Path)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, model.Hit{
			Path:         rec.Path,
			Name:         rec.Name,
			Score:        h.Score,
			SizeBytes:    rec.SizeBytes,
			ModifiedTime: rec.ModifiedTime,
			Category:     rec.Category,
			Snippet:      h.Snippet,
		})
	}
	return out, nil
}

func (s *Store) ListRecent(since time.Time, limit int) ([]model.FileRecord, error) {
	return s.db.ListRecent(since, limit)
}

func (s *Store) ListByCategory(category model.Category, extensions []string, limit int) ([]model.FileRecord, error) {
	return s.db.ListByCategory(category, extensions, limit)
}

// ListUnder returns change-detection metadata for records below the given
// directories; the indexer diffs this against the filesystem.
func (s *Store) ListUnder(dirs []string) (map[string]store.Meta, error) {
	return s.db.ListUnder(dirs)
}

func (s *Store) RecordDeletion(dr model.DeletionRecord) error {
	return s.db.RecordDeletion(dr)
}

func (s *Store) RecordMovement(mr model.MovementRecord) error {
	return s.db.RecordMovement(mr)
}

func (s *Store) RecentDeletions(limit int) ([]model.DeletionRecord, error) {
	return s.db.RecentDeletions(limit)
}

func (s *Store) RecentMovements(limit int) ([]model.MovementRecord, error) {
	return s.db.RecentMovements(limit)
}

func (s *Store) SearchDeleted(query string, daysBack int) ([]model.DeletionRecord, error) {
	return s.db.SearchDeleted(query, daysBack)
}

func (s *Store) DeletionStats() (model.DeletionStats, error) {
	return s.db.DeletionStats()
}

func (s *Store) StatsByCategory() (map[model.Category]model.CategoryStat, error) {
	return s.db.StatsByCategory()
}

func (s *Store) CountFiles() (int, error) {
	return s.db.CountFiles()
}

func (s *Store) FindDuplicates(limit int) ([]model.DuplicateGroup, error) {
	return s.db.FindDuplicates(limit)
}

func (s *Store) ListLargeFiles(minSize int64, limit int) ([]model.FileRecord, error) {
	return s.db.ListLargeFiles(minSize, limit)
}

func (s *Store) ListOldFiles(days int, limit int) ([]model.FileRecord, error) {
	return s.db.ListOldFiles(days, limit)
}

// Cleanup prunes history past the retention window and vacuums the store.
func (s *Store) Cleanup(retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	pruned, err := s.db.PruneHistory(time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if err := s.db.Vacuum(); err != nil {
		s.log.Warn("vacuum failed", "error", err)
	}
	return pruned, nil
}

// NewHistoryID returns a time-sortable history record id.
func NewHistoryID(at time.Time) string { return sqlite.NewHistoryID(at) }
