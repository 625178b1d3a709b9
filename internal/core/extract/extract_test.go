package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filedex/internal/model"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func TestExtractTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("quarterly budget review\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := New(&fixedEmbedder{vec: []float32{0.1, 0.2}}, time.Second, nil)
	res, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Failed {
		t.Fatalf("unexpected failure")
	}
	if res.Category != model.CategoryDocument {
		t.Fatalf("category=%s", res.Category)
	}
	if res.Digest == "" {
		t.Fatalf("missing digest")
	}
	if res.Text != "quarterly budget review" {
		t.Fatalf("text=%q", res.Text)
	}
	if len(res.Embedding) != 2 {
		t.Fatalf("embedding=%v", res.Embedding)
	}
}

func TestExtractBinarySkipsText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.dat")
	if err := os.WriteFile(path, []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := New(nil, time.Second, nil)
	res, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("text=%q", res.Text)
	}
	if res.Digest == "" {
		t.Fatalf("binary files still get digests")
	}
}

func TestExtractMissingFileFails(t *testing.T) {
	x := New(nil, time.Second, nil)
	res, err := x.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("err=%v", err)
	}
	if !res.Failed {
		t.Fatalf("expected Failed")
	}
	if res.Category != model.CategoryDocument {
		t.Fatalf("category should survive failure, got %s", res.Category)
	}
}

func TestExtractHonorsContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, []byte("readable content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := New(nil, time.Second, nil)
	res, err := x.Extract(ctx, path)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("err=%v", err)
	}
	if !res.Failed {
		t.Fatalf("expected Failed on expired context")
	}
}

func TestExtractEmbedderFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("migration plan"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := New(&fixedEmbedder{err: errors.New("down")}, time.Second, nil)
	res, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Failed {
		t.Fatalf("embedder failure must not fail extraction")
	}
	if res.Text == "" || len(res.Embedding) != 0 {
		t.Fatalf("text=%q embedding=%v", res.Text, res.Embedding)
	}
}

func TestDigest(t *testing.T) {
	if Digest(nil) != "" {
		t.Fatalf("empty content must have no digest")
	}
	a := Digest([]byte("same"))
	b := Digest([]byte("same"))
	c := Digest([]byte("diff"))
	if a == "" || a != b {
		t.Fatalf("a=%q b=%q", a, b)
	}
	if a == c {
		t.Fatalf("collision for trivially different inputs")
	}
	if len(a) != 16 {
		t.Fatalf("digest length=%d", len(a))
	}
}

func TestIsTextLike(t *testing.T) {
	if isTextLike(model.CategoryImage, []byte("text")) {
		t.Fatalf("image category must not be text-like")
	}
	if !isTextLike(model.CategoryOther, []byte("plain readable content")) {
		t.Fatalf("readable content should be text-like")
	}
	if isTextLike(model.CategoryCode, []byte{0x00, 0x01, 0x02}) {
		t.Fatalf("NUL bytes mean binary")
	}
}
