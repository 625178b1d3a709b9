package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"filedex/internal/config"
	"filedex/internal/core/extract"
	"filedex/internal/core/indexer"
	"filedex/internal/core/pipeline"
	"filedex/internal/core/sched"
	"filedex/internal/core/tracker"
	"filedex/internal/core/walk"
	"filedex/internal/core/watch"
	"filedex/internal/fdxd"
	"filedex/internal/index/meta"
	"filedex/internal/index/pool"
	"filedex/internal/llm"
	"filedex/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fdxd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config YAML")
		verbose    = flag.Bool("verbose", false, "debug logging")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("fdxd", version.String())
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.WatchDirs) == 0 {
		return fmt.Errorf("no watch directories configured (set watch_dirs or FDX_WATCH_DIRS)")
	}

	store, err := meta.Open(cfg.DBPath(), cfg.LexicalPath(), log)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := pool.New(store, pool.Options{
		ReaderSlots:    cfg.ReaderPoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	})
	if err != nil {
		return err
	}

	var embedder extract.Embedder
	var scorer pipeline.Scorer
	if cfg.SemanticEnabled {
		client, err := llm.New(llm.Options{
			BaseURL:    cfg.LLMBaseURL,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.RerankModel,
			Logger:     log,
		})
		if err != nil {
			return err
		}
		embedder = client
		scorer = client
	}

	walkOpts := walk.Options{
		ExcludeExtensions: cfg.ExcludeExts,
		ExcludeGlobs:      cfg.ExcludeGlobs,
		MaxFileSize:       cfg.MaxFileSizeBytes(),
	}

	extractor := extract.New(embedder, cfg.ExtractTimeout, log)
	tr := tracker.New(cfg.CorrelationWindow, log)
	ix, err := indexer.New(p, extractor, tr, indexer.Options{
		Roots:       cfg.WatchDirs,
		WalkOptions: walkOpts,
		Retention:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	resultCache, err := pipeline.OpenResultCache(cfg.CachePath(), cfg.CacheTTL)
	if err != nil {
		return err
	}
	defer resultCache.Close()

	searcher, err := pipeline.New(p, pipeline.Options{
		Embedder:       asPipelineEmbedder(embedder),
		Scorer:         scorer,
		ResultCache:    resultCache,
		LexicalWeight:  cfg.LexicalWeight,
		SemanticWeight: cfg.SemanticWeight,
		RerankEnabled:  cfg.RerankEnabled,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	hints := &hintQueue{}
	scheduler := sched.New(log)
	err = scheduler.Register(sched.KindFull, cfg.FullInterval, func(ctx context.Context) error {
		stats, err := ix.FullScan(ctx)
		if err != nil {
			return err
		}
		if stats.Added+stats.Updated+stats.Moved+stats.Deleted > 0 {
			searcher.InvalidateCache()
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = scheduler.Register(sched.KindIncremental, cfg.IncrInterval, func(ctx context.Context) error {
		paths := hints.drain()
		if len(paths) == 0 {
			return nil
		}
		stats, err := ix.IncrementalScan(ctx, paths)
		if err != nil {
			return err
		}
		if stats.Added+stats.Updated+stats.Moved+stats.Deleted > 0 {
			searcher.InvalidateCache()
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = scheduler.Register(sched.KindCleanup, cfg.CleanupInterval, func(ctx context.Context) error {
		_, err := ix.Cleanup(ctx)
		resultCache.Prune()
		return err
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	handlers := &fdxd.Handlers{
		Pool:     p,
		Searcher: searcher,
		Sched:    scheduler,
		Roots:    cfg.WatchDirs,
		Started:  time.Now(),
		Log:      log,
	}
	server, err := fdxd.NewServer(cfg.Listen, handlers, cfg.RequestTimeout, log)
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(ctx) })

	if cfg.WatchEnabled {
		watcher, err := watch.New(watch.Options{
			Roots:            cfg.WatchDirs,
			DataDir:          cfg.DataDir,
			WalkOptions:      walkOpts,
			AdaptiveDebounce: true,
			OnEvents: func(paths []string) {
				hints.add(paths)
				scheduler.Trigger(sched.KindIncremental)
			},
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
		g.Go(func() error { return watcher.Run(ctx) })
	}

	// First full scan on startup so a fresh index is usable immediately.
	scheduler.Trigger(sched.KindFull)

	log.Info("fdxd started", "version", version.String(), "watch_dirs", cfg.WatchDirs, "addr", server.Addr())
	err = g.Wait()
	log.Info("fdxd stopped")
	return err
}

// hintQueue accumulates watcher paths between incremental cycles.
type hintQueue struct {
	mu    sync.Mutex
	paths []string
}

func (q *hintQueue) add(paths []string) {
	q.mu.Lock()
	q.paths = append(q.paths, paths...)
	q.mu.Unlock()
}

func (q *hintQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.paths
	q.paths = nil
	return out
}

// asPipelineEmbedder narrows the extract embedder without forcing a nil
// interface with a non-nil dynamic type.
func asPipelineEmbedder(e extract.Embedder) pipeline.Embedder {
	if e == nil {
		return nil
	}
	return e
}
