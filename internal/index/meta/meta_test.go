package meta

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"filedex/internal/index/store"
	"filedex/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "filedex.db"), filepath.Join(dir, "lexical.bleve"), slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(path, text string) model.FileRecord {
	return model.FileRecord{
		Path:          path,
		Name:          filepath.Base(path),
		SizeBytes:     int64(len(text)),
		ModifiedTime:  time.Now(),
		Category:      model.CategoryForPath(path),
		ContentDigest: "digest-" + filepath.Base(path),
		ExtractedText: text,
	}
}

func TestUpsertFeedsBothIndexes(t *testing.T) {
	s := openTestStore(t)
	if err := s.Upsert(rec("/w/roadmap.md", "the product roadmap for next year")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.LexicalSearch("roadmap", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "/w/roadmap.md" {
		t.Fatalf("hits=%v", hits)
	}
	// Hydration pulls record fields, not just index fields.
	if hits[0].Category != model.CategoryDocument || hits[0].SizeBytes == 0 {
		t.Fatalf("hit=%+v", hits[0])
	}
}

func TestSemanticSearchHydrates(t *testing.T) {
	s := openTestStore(t)
	r := rec("/w/vec.txt", "vector content")
	r.Embedding = []float32{1, 0}
	if err := s.Upsert(r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.SemanticSearch([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "vec.txt" || hits[0].Score != 1 {
		t.Fatalf("hits=%+v", hits)
	}
}

func TestDeleteWithHistoryRemovesLexicalDoc(t *testing.T) {
	s := openTestStore(t)
	if err := s.Upsert(rec("/w/temp.txt", "throwaway")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	_, err := s.DeleteWithHistory("/w/temp.txt", model.DeletionRecord{
		OriginalPath: "/w/temp.txt",
		Reason:       model.ReasonUserAction,
	})
	if err != nil {
		t.Fatalf("DeleteWithHistory: %v", err)
	}

	hits, err := s.LexicalSearch("throwaway", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits=%v", hits)
	}
	if _, err := s.GetByPath("/w/temp.txt"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestRenameKeepsSearchable(t *testing.T) {
	s := openTestStore(t)
	if err := s.Upsert(rec("/w/manual.txt", "interface specification")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	err := s.Rename("/w/manual.txt", "/w/backup/manual.txt", model.MovementRecord{
		OriginalPath: "/w/manual.txt",
		NewPath:      "/w/backup/manual.txt",
		MovementType: model.MoveBackup,
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}

	hits, err := s.LexicalSearch("specification", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "/w/backup/spec.txt" {
		t.Fatalf("hits=%v", hits)
	}

	moves, err := s.RecentMovements(5)
	if err != nil {
		t.Fatalf("RecentMovements: %v", err)
	}
	if len(moves) != 1 || moves[0].MovementType != model.MoveBackup {
		t.Fatalf("moves=%+v", moves)
	}
}

func TestCleanupPrunesHistory(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordDeletion(model.DeletionRecord{
		OriginalPath: "/w/ancient.txt",
		DeletedAt:    time.Now().AddDate(0, 0, -200),
	}); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}

	pruned, err := s.Cleanup(90 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned=%d", pruned)
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	var nilStore *Store
	if err := nilStore.Ping(); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err=%v", err)
	}
}
