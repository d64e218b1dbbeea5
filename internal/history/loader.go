// Package history loads run metric history, serving repeated requests from
// the on-disk cache and fanning out multi-run fetches with bounded
// concurrency.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/wandbplot/internal/cache"
	"github.com/user/wandbplot/pkg/wandb"
)

// Fetcher is the subset of the API client the loader needs.
type Fetcher interface {
	History(ctx context.Context, entity, project, runID string, samples int) ([]wandb.HistoryRow, error)
	ScanHistory(ctx context.Context, entity, project, runID string, pageSize int) ([]wandb.HistoryRow, error)
}

// Loader fetches run history through an optional cache.
type Loader struct {
	Fetcher       Fetcher
	Cache         *cache.Store // nil disables caching
	Samples       int
	PageSize      int
	MaxConcurrent int
	MaxAge        time.Duration // <= 0 means cached entries never expire
	Refresh       bool          // bypass the cache and overwrite it
}

// Rows returns the history of one run, sampled or full resolution.
func (l *Loader) Rows(ctx context.Context, entity, project, runID string, fullRes bool) ([]wandb.HistoryRow, error) {
	if l.Cache != nil && !l.Refresh {
		rows, ok, err := l.Cache.Get(ctx, entity, project, runID, fullRes, l.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		if ok {
			slog.Debug("history cache hit", "run", runID, "full_res", fullRes, "rows", len(rows))
			return rows, nil
		}
	}

	var rows []wandb.HistoryRow
	var err error
	if fullRes {
		slog.Info("fetching full resolution history", "run", runID)
		rows, err = l.Fetcher.ScanHistory(ctx, entity, project, runID, l.PageSize)
	} else {
		slog.Debug("fetching sampled history", "run", runID, "samples", l.Samples)
		rows, err = l.Fetcher.History(ctx, entity, project, runID, l.Samples)
	}
	if err != nil {
		return nil, err
	}

	if l.Cache != nil {
		if err := l.Cache.Put(ctx, entity, project, runID, fullRes, rows); err != nil {
			// A cache write failure never fails the fetch.
			slog.Warn("failed to cache history", "run", runID, "error", err)
		}
	}
	return rows, nil
}

// RunsRows fetches history for several runs concurrently, keyed by run id.
// The first error cancels the remaining fetches.
func (l *Loader) RunsRows(ctx context.Context, entity, project string, runIDs []string, fullRes bool) (map[string][]wandb.HistoryRow, error) {
	limit := l.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}

	results := make([]([]wandb.HistoryRow), len(runIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, runID := range runIDs {
		g.Go(func() error {
			rows, err := l.Rows(gctx, entity, project, runID, fullRes)
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byRun := make(map[string][]wandb.HistoryRow, len(runIDs))
	for i, runID := range runIDs {
		byRun[runID] = results[i]
	}
	return byRun, nil
}
