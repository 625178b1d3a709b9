package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filedex/internal/core/walk"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(paths []string) {
	c.mu.Lock()
	c.paths = append(c.paths, paths...)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *collector) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range c.snapshot() {
			if p == want {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("never saw %s in %v", want, c.snapshot())
}

func TestWatcherValidation(t *testing.T) {
	if _, err := New(Options{OnEvents: func([]string) {}}); err == nil {
		t.Fatalf("expected missing roots error")
	}
	if _, err := New(Options{Roots: []string{t.TempDir()}}); err == nil {
		t.Fatalf("expected missing callback error")
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	root := t.TempDir()
	var c collector
	w, err := New(Options{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
		OnEvents: c.add,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	target := filepath.Join(root, "note.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.waitFor(t, filepath.ToSlash(target))
}

func TestWatcherSkipsExcluded(t *testing.T) {
	root := t.TempDir()
	var c collector
	w, err := New(Options{
		Roots:       []string{root},
		WalkOptions: walk.Options{ExcludeExtensions: []string{".log"}},
		Debounce:    50 * time.Millisecond,
		OnEvents:    c.add,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	excluded := filepath.Join(root, "noise.log")
	kept := filepath.Join(root, "kept.txt")
	_ = os.WriteFile(excluded, []byte("x"), 0o644)
	_ = os.WriteFile(kept, []byte("x"), 0o644)

	c.waitFor(t, filepath.ToSlash(kept))
	for _, p := range c.snapshot() {
		if p == filepath.ToSlash(excluded) {
			t.Fatalf("excluded file was reported")
		}
	}
}

func TestWatcherDebounceOption(t *testing.T) {
	w, err := New(Options{
		Roots:    []string{t.TempDir()},
		Debounce: 75 * time.Millisecond,
		OnEvents: func([]string) {},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	if w.Debounce() != 75*time.Millisecond {
		t.Fatalf("debounce=%v", w.Debounce())
	}
}
