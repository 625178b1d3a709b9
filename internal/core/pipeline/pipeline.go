package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"filedex/internal/core/cache"
	"filedex/internal/index/meta"
	"filedex/internal/index/pool"
	"filedex/internal/model"
)

// Embedder produces a query vector for the semantic stage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scorer rates hit relevance for the rerank stage.
type Scorer interface {
	Score(ctx context.Context, query, name, snippet string) (float64, error)
}

// Request is one search invocation. Filters narrow the result set after
// ranking; zero values mean no restriction. UseSemantic and UseRerank gate
// the later stages per request; absent means enabled, so hybrid stays the
// default.
type Request struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit"`
	Category    string   `json:"category,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
	RecentHours int      `json:"recent_hours,omitempty"`
	UseSemantic *bool    `json:"use_semantic,omitempty"`
	UseRerank   *bool    `json:"use_rerank,omitempty"`
}

func (r Request) semanticWanted() bool { return r.UseSemantic == nil || *r.UseSemantic }
func (r Request) rerankWanted() bool   { return r.UseRerank == nil || *r.UseRerank }

// Response carries the ranked hits and the method tag describing which
// stages actually ran.
type Response struct {
	Hits      []model.Hit  `json:"hits"`
	Method    model.Method `json:"method"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Cached    bool         `json:"cached"`
}

// Searcher runs the staged pipeline: lexical retrieval, semantic blend,
// optional rerank. Later stages degrade without failing the request; the
// method tag tells the caller what they got.
type Searcher struct {
	pool     *pool.Pool
	embedder Embedder
	scorer   Scorer
	results  *ResultCache

	mu        sync.Mutex
	queryVecs *cache.LRU[string, []float32]

	lexWeight     float64
	semWeight     float64
	rerankEnabled bool
	rerankTimeout time.Duration
	log           *slog.Logger
}

type Options struct {
	Embedder       Embedder
	Scorer         Scorer
	ResultCache    *ResultCache
	LexicalWeight  float64
	SemanticWeight float64
	RerankEnabled  bool
	RerankTimeout  time.Duration
	Logger         *slog.Logger
}

func New(p *pool.Pool, opts Options) (*Searcher, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	lw, sw := opts.LexicalWeight, opts.SemanticWeight
	if lw <= 0 && sw <= 0 {
		lw, sw = 0.5, 0.5
	}
	timeout := opts.RerankTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Searcher{
		pool:          p,
		embedder:      opts.Embedder,
		scorer:        opts.Scorer,
		results:       opts.ResultCache,
		queryVecs:     cache.NewLRU[string, []float32](256),
		lexWeight:     lw,
		semWeight:     sw,
		rerankEnabled: opts.RerankEnabled && opts.Scorer != nil,
		rerankTimeout: timeout,
		log:           log,
	}, nil
}

// Search runs the full pipeline.
func (sr *Searcher) Search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Response{}, fmt.Errorf("query is required")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	key := cacheKey(req)
	if hits, method, ok := sr.results.Get(key); ok {
		return Response{Hits: hits, Method: method, ElapsedMS: time.Since(start).Milliseconds(), Cached: true}, nil
	}

	// Over-fetch so post-rank filters still fill the page.
	fetch := req.Limit * 3
	if fetch < 30 {
		fetch = 30
	}

	var lexHits []model.Hit
	err := sr.pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		lexHits, err = s.LexicalSearch(req.Query, fetch)
		return err
	})
	if err != nil {
		return Response{}, err
	}

	hits, method := lexHits, model.MethodLexical
	if req.semanticWanted() {
		hits, method = sr.semanticBlend(ctx, req.Query, lexHits, fetch)
	}
	hits = applyFilters(hits, req)

	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	if method == model.MethodHybrid && sr.rerankEnabled && req.rerankWanted() && len(hits) > 0 {
		reranked, ok := sr.rerank(ctx, req.Query, hits)
		if ok {
			hits = reranked
		} else {
			method = model.MethodHybridUnranked
		}
	}

	sr.results.Put(key, hits, method)
	return Response{Hits: hits, Method: method, ElapsedMS: time.Since(start).Milliseconds()}, nil
}

// QuickSearch is the lexical stage alone, for latency-sensitive callers.
func (sr *Searcher) QuickSearch(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Response{}, fmt.Errorf("query is required")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	var hits []model.Hit
	err := sr.pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		hits, err = s.LexicalSearch(req.Query, req.Limit*3)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	hits = applyFilters(hits, req)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return Response{Hits: hits, Method: model.MethodLexical, ElapsedMS: time.Since(start).Milliseconds()}, nil
}

// InvalidateCache drops cached results after the index changes.
func (sr *Searcher) InvalidateCache() {
	sr.results.Invalidate()
}

// semanticBlend merges semantic rankings into the lexical hits. Any
// failure in the semantic stage logs and returns the lexical results
// tagged accordingly.
func (sr *Searcher) semanticBlend(ctx context.Context, query string, lexHits []model.Hit, fetch int) ([]model.Hit, model.Method) {
	if sr.embedder == nil {
		return lexHits, model.MethodLexical
	}

	vec, err := sr.queryVector(ctx, query)
	if err != nil {
		sr.log.Warn("query embedding failed, lexical only", "error", err)
		return lexHits, model.MethodLexical
	}

	var semHits []model.Hit
	err = sr.pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		semHits, err = s.SemanticSearch(vec, fetch)
		return err
	})
	if err != nil {
		sr.log.Warn("semantic stage failed, lexical only", "error", err)
		return lexHits, model.MethodLexical
	}

	merged := map[string]model.Hit{}
	for _, h := range lexHits {
		h.Score = sr.lexWeight * h.Score
		merged[h.Path] = h
	}
	for _, h := range semHits {
		if prev, ok := merged[h.Path]; ok {
			prev.Score += sr.semWeight * h.Score
			if prev.Snippet == "" {
				prev.Snippet = h.Snippet
			}
			merged[h.Path] = prev
		} else {
			h.Score = sr.semWeight * h.Score
			merged[h.Path] = h
		}
	}

	out := make([]model.Hit, 0, len(merged))
	for _, h := range merged {
		out = append(out, h)
	}
	sortHits(out)
	return out, model.MethodHybrid
}

func (sr *Searcher) queryVector(ctx context.Context, query string) ([]float32, error) {
	sr.mu.Lock()
	vec, ok := sr.queryVecs.Get(query)
	sr.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := sr.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	sr.mu.Lock()
	sr.queryVecs.Put(query, vec)
	sr.mu.Unlock()
	return vec, nil
}

// rerank rescores the page with the model. Any failure or timeout skips
// the stage wholesale; a half-reranked page would not be comparable.
func (sr *Searcher) rerank(ctx context.Context, query string, hits []model.Hit) ([]model.Hit, bool) {
	ctx, cancel := context.WithTimeout(ctx, sr.rerankTimeout)
	defer cancel()

	out := make([]model.Hit, len(hits))
	copy(out, hits)
	for i := range out {
		score, err := sr.scorer.Score(ctx, query, out[i].Name, out[i].Snippet)
		if err != nil {
			sr.log.Warn("rerank skipped", "error", err)
			return nil, false
		}
		out[i].Score = score
	}
	sortHits(out)
	return out, true
}

func sortHits(hits []model.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
}

func applyFilters(hits []model.Hit, req Request) []model.Hit {
	category := model.Category(strings.ToLower(strings.TrimSpace(req.Category)))
	exts := map[string]bool{}
	for _, e := range req.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	var cutoff time.Time
	if req.RecentHours > 0 {
		cutoff = time.Now().Add(-time.Duration(req.RecentHours) * time.Hour)
	}

	if category == "" && len(exts) == 0 && cutoff.IsZero() {
		return hits
	}

	out := hits[:0]
	for _, h := range hits {
		if category != "" && h.Category != category {
			continue
		}
		if len(exts) > 0 && !exts[strings.ToLower(path.Ext(h.Name))] {
			continue
		}
		if !cutoff.IsZero() && h.ModifiedTime.Before(cutoff) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func cacheKey(req Request) string {
	exts := append([]string(nil), req.Extensions...)
	sort.Strings(exts)
	return fmt.Sprintf("%s|%d|%s|%s|%d|%t|%t",
		strings.ToLower(req.Query), req.Limit, strings.ToLower(req.Category),
		strings.Join(exts, ","), req.RecentHours,
		req.semanticWanted(), req.rerankWanted())
}
