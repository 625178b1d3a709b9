package fdxd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"filedex/internal/core/pipeline"
	"filedex/internal/core/sched"
	"filedex/internal/index/meta"
	"filedex/internal/index/pool"
	"filedex/internal/model"
	"filedex/internal/version"
)

// Handlers implements the RPC surface. Every store access goes through
// the pool; handlers never hold a reference to a raw store handle.
type Handlers struct {
	Pool     *pool.Pool
	Searcher *pipeline.Searcher
	Sched    *sched.Scheduler
	Roots    []string
	Started  time.Time
	Log      *slog.Logger
}

func (h *Handlers) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case "ping":
		return "pong", nil
	case "version":
		return map[string]string{"version": version.String()}, nil
	case "search":
		return h.search(ctx, req.Params, false)
	case "quick_search":
		return h.search(ctx, req.Params, true)
	case "recent":
		return h.recent(ctx, req.Params)
	case "deletion.recent":
		return h.deletionRecent(ctx, req.Params)
	case "movement.recent":
		return h.movementRecent(ctx, req.Params)
	case "deletion.search":
		return h.deletionSearch(ctx, req.Params)
	case "deletion.stats":
		return h.deletionStats(ctx)
	case "report.duplicates":
		return h.reportDuplicates(ctx, req.Params)
	case "report.large":
		return h.reportLarge(ctx, req.Params)
	case "report.old":
		return h.reportOld(ctx, req.Params)
	case "scan.trigger":
		return h.scanTrigger(req.Params)
	case "status":
		return h.status(ctx)
	default:
		return nil, errMethodNotFound
	}
}

var (
	errMethodNotFound = errors.New("method not found")
	errInvalidParams  = errors.New("invalid params")
)

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func (h *Handlers) search(ctx context.Context, raw json.RawMessage, quick bool) (any, error) {
	var req pipeline.Request
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", errInvalidParams)
	}
	if quick {
		return h.Searcher.QuickSearch(ctx, req)
	}
	return h.Searcher.Search(ctx, req)
}

type recentParams struct {
	Hours      int      `json:"hours,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Category   string   `json:"category,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

func (h *Handlers) recent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p recentParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Hours <= 0 {
		p.Hours = 24
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}

	var records []model.FileRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		if p.Category != "" || len(p.Extensions) > 0 {
			records, err = s.ListByCategory(model.Category(strings.ToLower(p.Category)), p.Extensions, p.Limit)
			return err
		}
		records, err = s.ListRecent(time.Now().Add(-time.Duration(p.Hours)*time.Hour), p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": records}, nil
}

type limitParams struct {
	Limit int `json:"limit,omitempty"`
}

func (h *Handlers) deletionRecent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p limitParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var records []model.DeletionRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		records, err = s.RecentDeletions(p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"deletions": records}, nil
}

func (h *Handlers) movementRecent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p limitParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var records []model.MovementRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		records, err = s.RecentMovements(p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"movements": records}, nil
}

type deletionSearchParams struct {
	Query    string `json:"query"`
	DaysBack int    `json:"days_back,omitempty"`
}

func (h *Handlers) deletionSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	var p deletionSearchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var records []model.DeletionRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		records, err = s.SearchDeleted(p.Query, p.DaysBack)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"deletions": records}, nil
}

func (h *Handlers) deletionStats(ctx context.Context) (any, error) {
	var stats model.DeletionStats
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		stats, err = s.DeletionStats()
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (h *Handlers) reportDuplicates(ctx context.Context, raw json.RawMessage) (any, error) {
	var p limitParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var groups []model.DuplicateGroup
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		groups, err = s.FindDuplicates(p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": groups}, nil
}

type largeParams struct {
	MinSizeBytes int64 `json:"min_size_bytes,omitempty"`
	Limit        int   `json:"limit,omitempty"`
}

func (h *Handlers) reportLarge(ctx context.Context, raw json.RawMessage) (any, error) {
	var p largeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MinSizeBytes <= 0 {
		p.MinSizeBytes = 100 << 20
	}
	var records []model.FileRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		records, err = s.ListLargeFiles(p.MinSizeBytes, p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": records}, nil
}

type oldParams struct {
	Days  int `json:"days,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func (h *Handlers) reportOld(ctx context.Context, raw json.RawMessage) (any, error) {
	var p oldParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var records []model.FileRecord
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		records, err = s.ListOldFiles(p.Days, p.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": records}, nil
}

type scanTriggerParams struct {
	Kind string `json:"kind"`
}

func (h *Handlers) scanTrigger(raw json.RawMessage) (any, error) {
	var p scanTriggerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	kind := sched.Kind(strings.ToLower(strings.TrimSpace(p.Kind)))
	switch kind {
	case "":
		kind = sched.KindFull
	case sched.KindFull, sched.KindIncremental, sched.KindCleanup:
	default:
		return nil, fmt.Errorf("%w: unknown scan kind %q", errInvalidParams, p.Kind)
	}
	triggered := h.Sched.Trigger(kind)
	return map[string]any{"kind": string(kind), "triggered": triggered}, nil
}

func (h *Handlers) status(ctx context.Context) (any, error) {
	var files int
	var byCategory map[model.Category]model.CategoryStat
	err := h.Pool.WithReader(ctx, func(s *meta.Store) error {
		var err error
		if files, err = s.CountFiles(); err != nil {
			return err
		}
		byCategory, err = s.StatsByCategory()
		return err
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"version":        version.String(),
		"uptime_seconds": int64(time.Since(h.Started) / time.Second),
		"watch_dirs":     h.Roots,
		"files":          files,
		"by_category":    byCategory,
		"pool":           h.Pool.Gauge(),
		"cycles":         h.Sched.Status(),
	}, nil
}
