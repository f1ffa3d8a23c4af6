package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/recall/internal/indexer"
	"github.com/cloo-solutions/recall/internal/logger"
)

const defaultSyncConcurrency = 4

// SeriesSyncer lists the series the process has loaded and syncs them.
// *indexer.Registry satisfies it.
type SeriesSyncer interface {
	Series() []string
	SyncSeries(ctx context.Context, seriesID string, force bool) (indexer.SyncResult, error)
}

// SeriesSyncProcessor picks up meetings that finished while no webhook
// reached the server.
type SeriesSyncProcessor struct {
	syncer      SeriesSyncer
	concurrency int
	log         *logger.Logger
}

func NewSeriesSyncProcessor(syncer SeriesSyncer, concurrency int, log *logger.Logger) *SeriesSyncProcessor {
	if concurrency <= 0 {
		concurrency = defaultSyncConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SeriesSyncProcessor{syncer: syncer, concurrency: concurrency, log: log}
}

// ProcessJobs syncs every loaded series. One failing series does not stop
// the others; all failures are returned joined.
func (p *SeriesSyncProcessor) ProcessJobs(ctx context.Context) error {
	series := p.syncer.Series()
	if len(series) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, id := range series {
		g.Go(func() error {
			result, err := p.syncer.SyncSeries(gctx, id, false)
			if err != nil {
				p.log.Warn("background sync failed", "series_id", id, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("sync %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			if result.Indexed > 0 {
				p.log.Info("background sync indexed meetings", "series_id", id, "indexed", result.Indexed)
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}
