package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"filedex/internal/index/store"
	"filedex/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "filedex.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(path string) model.FileRecord {
	return model.FileRecord{
		Path:          path,
		Name:          filepath.Base(path),
		Extension:     filepath.Ext(path),
		SizeBytes:     42,
		ModifiedTime:  time.Now().Truncate(time.Second),
		Category:      model.CategoryForPath(path),
		ContentDigest: "d-" + filepath.Base(path),
		ExtractedText: "body of " + filepath.Base(path),
		LastIndexedAt: time.Now(),
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	rec := record("/w/docs/letter.txt")
	rec.Embedding = []float32{0.5, -0.25, 1}

	if err := s.UpsertFile(rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	got, err := s.GetByPath(rec.Path)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got.Name != "letter.txt" || got.SizeBytes != 42 {
		t.Fatalf("got=%+v", got)
	}
	if got.Category != model.CategoryDocument {
		t.Fatalf("category=%s", got.Category)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.25 {
		t.Fatalf("embedding=%v", got.Embedding)
	}

	// Upsert replaces in place.
	rec.SizeBytes = 100
	if err := s.UpsertFile(rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	got, err = s.GetByPath(rec.Path)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got.SizeBytes != 100 {
		t.Fatalf("size=%d", got.SizeBytes)
	}
	if n, _ := s.CountFiles(); n != 1 {
		t.Fatalf("count=%d", n)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetByPath("/nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestDeleteWithHistory(t *testing.T) {
	s := openTestStore(t)
	rec := record("/w/old.pdf")
	if err := s.UpsertFile(rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	_, err := s.DeleteWithHistory(rec.Path, model.DeletionRecord{
		OriginalPath:  rec.Path,
		ContentDigest: rec.ContentDigest,
		Reason:        model.ReasonUserAction,
		Recoverable:   true,
	})
	if err != nil {
		t.Fatalf("DeleteWithHistory: %v", err)
	}
	if _, err := s.GetByPath(rec.Path); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("record should be gone, err=%v", err)
	}

	dels, err := s.RecentDeletions(10)
	if err != nil {
		t.Fatalf("RecentDeletions: %v", err)
	}
	if len(dels) != 1 || dels[0].Filename != "old.pdf" || dels[0].Reason != model.ReasonUserAction {
		t.Fatalf("dels=%+v", dels)
	}
	if dels[0].ID == "" {
		t.Fatalf("missing history id")
	}
	if dels[0].ContentDigest != rec.ContentDigest || !dels[0].Recoverable {
		t.Fatalf("digest not retained: %+v", dels[0])
	}
}

func TestRenameWithHistory(t *testing.T) {
	s := openTestStore(t)
	rec := record("/w/a/doc.md")
	rec.Embedding = []float32{1, 2}
	if err := s.UpsertFile(rec); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	err := s.RenameWithHistory("/w/a/doc.md", "/w/archive/doc.md", model.MovementRecord{
		OriginalPath: "/w/a/doc.md",
		NewPath:      "/w/archive/doc.md",
		MovementType: model.MoveArchive,
	})
	if err != nil {
		t.Fatalf("RenameWithHistory: %v", err)
	}

	if _, err := s.GetByPath("/w/a/doc.md"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old path still present, err=%v", err)
	}
	got, err := s.GetByPath("/w/archive/doc.md")
	if err != nil {
		t.Fatalf("GetByPath new: %v", err)
	}
	if len(got.Embedding) != 2 {
		t.Fatalf("embedding did not follow rename: %v", got.Embedding)
	}

	moves, err := s.RecentMovements(10)
	if err != nil {
		t.Fatalf("RecentMovements: %v", err)
	}
	if len(moves) != 1 || moves[0].MovementType != model.MoveArchive {
		t.Fatalf("moves=%+v", moves)
	}
}

func TestRenameMissing(t *testing.T) {
	s := openTestStore(t)
	err := s.RenameWithHistory("/w/none", "/w/other", model.MovementRecord{
		OriginalPath: "/w/none", NewPath: "/w/other",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestListUnder(t *testing.T) {
	s := openTestStore(t)
	for _, p := range []string{"/w/docs/a.txt", "/w/docs/sub/b.txt", "/other/c.txt"} {
		if err := s.UpsertFile(record(p)); err != nil {
			t.Fatalf("UpsertFile %s: %v", p, err)
		}
	}

	metas, err := s.ListUnder([]string{"/w/docs"})
	if err != nil {
		t.Fatalf("ListUnder: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("metas=%v", metas)
	}
	m, ok := metas["/w/docs/a.txt"]
	if !ok || m.Digest != "d-a.txt" {
		t.Fatalf("meta=%+v ok=%v", m, ok)
	}
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	s := openTestStore(t)
	near := record("/w/near.txt")
	near.Embedding = []float32{1, 0}
	far := record("/w/far.txt")
	far.Embedding = []float32{-1, 0}
	skewed := record("/w/skewed.txt")
	skewed.Embedding = []float32{0.7, 0.7}
	for _, r := range []model.FileRecord{near, far, skewed} {
		if err := s.UpsertFile(r); err != nil {
			t.Fatalf("UpsertFile: %v", err)
		}
	}

	hits, err := s.SemanticSearch([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits=%v", hits)
	}
	if hits[0].Path != "/w/near.txt" || hits[2].Path != "/w/far.txt" {
		t.Fatalf("order=%v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores=%v", hits)
	}
}

func TestFindDuplicates(t *testing.T) {
	s := openTestStore(t)
	a := record("/w/one.bin")
	b := record("/w/copy/one.bin")
	a.ContentDigest, b.ContentDigest = "same", "same"
	noDigest := record("/w/empty")
	noDigest.ContentDigest = ""
	for _, r := range []model.FileRecord{a, b, noDigest} {
		if err := s.UpsertFile(r); err != nil {
			t.Fatalf("UpsertFile: %v", err)
		}
	}

	groups, err := s.FindDuplicates(10)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Paths) != 2 {
		t.Fatalf("groups=%+v", groups)
	}
}

func TestDeletionStatsAndPrune(t *testing.T) {
	s := openTestStore(t)
	old := model.DeletionRecord{
		OriginalPath: "/w/ancient.txt",
		DeletedAt:    time.Now().AddDate(0, 0, -120),
		Reason:       model.ReasonCleanup,
	}
	fresh := model.DeletionRecord{
		OriginalPath: "/w/today.txt",
		Recoverable:  true,
	}
	if err := s.RecordDeletion(old); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}
	if err := s.RecordDeletion(fresh); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}

	st, err := s.DeletionStats()
	if err != nil {
		t.Fatalf("DeletionStats: %v", err)
	}
	if st.TotalDeleted != 2 || st.Recoverable != 1 || st.DeletedToday != 1 {
		t.Fatalf("stats=%+v", st)
	}

	pruned, err := s.PruneHistory(time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned=%d", pruned)
	}
	st, _ = s.DeletionStats()
	if st.TotalDeleted != 1 {
		t.Fatalf("stats after prune=%+v", st)
	}
}

func TestSearchDeleted(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordDeletion(model.DeletionRecord{OriginalPath: "/w/tax-2024.pdf"}); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}
	if err := s.RecordDeletion(model.DeletionRecord{OriginalPath: "/w/notes.txt"}); err != nil {
		t.Fatalf("RecordDeletion: %v", err)
	}

	dels, err := s.SearchDeleted("tax", 30)
	if err != nil {
		t.Fatalf("SearchDeleted: %v", err)
	}
	if len(dels) != 1 || dels[0].Filename != "tax-2024.pdf" {
		t.Fatalf("dels=%+v", dels)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e7}
	out := decodeVector(encodeVector(in), len(in))
	if len(out) != len(in) {
		t.Fatalf("len=%d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("i=%d in=%v out=%v", i, in[i], out[i])
		}
	}
}
