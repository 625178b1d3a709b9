package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"filedex/internal/core/walk"
)

// Watcher feeds debounced filesystem events to the incremental scan. Each
// watch directory gets its own exclusion filter; event paths that fail the
// filter never reach the indexer.
type Watcher struct {
	roots   []string
	filters map[string]*walk.Filter
	dataDir string

	debouncer *Debouncer
	debounce  time.Duration
	log       *slog.Logger

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}
}

type Options struct {
	Roots            []string
	DataDir          string
	WalkOptions      walk.Options
	Debounce         time.Duration
	AdaptiveDebounce bool
	DebounceMin      time.Duration
	DebounceMax      time.Duration

	// OnEvents receives batches of absolute paths whose state changed.
	OnEvents func(paths []string)
	Logger   *slog.Logger
}

func New(opts Options) (*Watcher, error) {
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("at least one watch directory is required")
	}
	if opts.OnEvents == nil {
		return nil, fmt.Errorf("event callback is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	roots := make([]string, 0, len(opts.Roots))
	filters := make(map[string]*walk.Filter, len(opts.Roots))
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		abs = filepath.ToSlash(filepath.Clean(abs))
		f, err := walk.NewFilter(abs, opts.WalkOptions)
		if err != nil {
			return nil, err
		}
		roots = append(roots, abs)
		filters[abs] = f
	}

	dataDir := ""
	if strings.TrimSpace(opts.DataDir) != "" {
		if abs, err := filepath.Abs(opts.DataDir); err == nil {
			dataDir = filepath.ToSlash(filepath.Clean(abs))
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	minDelay := opts.DebounceMin
	if minDelay <= 0 {
		minDelay = 50 * time.Millisecond
	}
	maxDelay := opts.DebounceMax
	if maxDelay <= 0 {
		maxDelay = 500 * time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	w := &Watcher{
		roots:     roots,
		filters:   filters,
		dataDir:   dataDir,
		debouncer: NewDebouncer(debounce),
		debounce:  debounce,
		log:       log,
		watcher:   fsw,
		closed:    make(chan struct{}),
	}
	if opts.AdaptiveDebounce {
		w.debouncer.SetDelayFunc(func(count int) time.Duration {
			switch {
			case count <= 10:
				return minDelay
			case count <= 100:
				return minDelay * 2
			case count <= 500:
				return minDelay * 4
			default:
				return maxDelay
			}
		})
	}
	w.debouncer.OnFire(opts.OnEvents)

	for _, root := range roots {
		if err := w.addExistingDirs(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) Debounce() time.Duration {
	if w == nil {
		return 0
	}
	return w.debounce
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() { close(w.closed) })

	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closed:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) addExistingDirs(root string) error {
	filter := w.filters[root]
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if filepath.ToSlash(p) == root {
			return w.watcher.Add(p)
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if !filter.ShouldInclude(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	abs := filepath.ToSlash(filepath.Clean(ev.Name))
	root, rel, ok := w.resolve(abs)
	if !ok {
		return
	}
	if w.underDataDir(abs) {
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
		if st, err := os.Stat(abs); err == nil && st.IsDir() {
			if w.filters[root].ShouldInclude(rel, true) {
				_ = w.addDirRecursive(root, abs)
				// A new directory may already contain files; scan it whole.
				w.debouncer.Push(abs)
			}
			return
		}
	}

	if !w.filters[root].ShouldInclude(rel, false) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.debouncer.Push(abs)
	}
}

// resolve maps an absolute event path to its watch root.
func (w *Watcher) resolve(abs string) (root, rel string, ok bool) {
	if strings.TrimSpace(abs) == "" {
		return "", "", false
	}
	for _, r := range w.roots {
		if abs == r || !strings.HasPrefix(abs, r+"/") {
			continue
		}
		return r, strings.TrimPrefix(abs, r+"/"), true
	}
	return "", "", false
}

// underDataDir screens out the engine's own database churn when the data
// directory sits inside a watch root.
func (w *Watcher) underDataDir(abs string) bool {
	if w.dataDir == "" {
		return false
	}
	return abs == w.dataDir || strings.HasPrefix(abs, w.dataDir+"/")
}

func (w *Watcher) addDirRecursive(root, absDir string) error {
	filter := w.filters[root]
	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if !filter.ShouldInclude(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}
