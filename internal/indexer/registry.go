package indexer

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

// Registry hands out one Indexer per series, creating and loading it on
// first use.
type Registry struct {
	sources  SourceLister
	embedder Embedder
	vectorsP vectorstore.Persister
	itemsP   actionitems.Persister
	log      *logger.Logger
	opts     Options

	mu       sync.Mutex
	indexers map[string]*registryEntry
}

// registryEntry loads its indexer once, outside the registry lock, so a slow
// store only delays callers of the same series.
type registryEntry struct {
	once sync.Once
	ix   *Indexer
}

func NewRegistry(
	sources SourceLister,
	embedder Embedder,
	vectors vectorstore.Persister,
	items actionitems.Persister,
	log *logger.Logger,
	opts Options,
) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		sources:  sources,
		embedder: embedder,
		vectorsP: vectors,
		itemsP:   items,
		log:      log,
		opts:     opts,
		indexers: make(map[string]*registryEntry),
	}
}

// Get returns the series' indexer. An empty series id returns nil: sessions
// outside a recurring series have no memory.
func (r *Registry) Get(ctx context.Context, seriesID string) *Indexer {
	if seriesID == "" {
		return nil
	}

	r.mu.Lock()
	entry, ok := r.indexers[seriesID]
	if !ok {
		entry = &registryEntry{}
		r.indexers[seriesID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		vectors := vectorstore.New(seriesID, r.vectorsP, r.log)
		vectors.Load(ctx)
		items := actionitems.NewStore(seriesID, r.itemsP, r.log)
		items.Load(ctx)

		entry.ix = New(seriesID, r.sources, r.embedder, vectors, items, r.log, r.opts)
	})
	return entry.ix
}

// Series lists the series with a live indexer, sorted.
func (r *Registry) Series() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.indexers))
	for id := range r.indexers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyncSeries syncs one series, creating its indexer if needed.
func (r *Registry) SyncSeries(ctx context.Context, seriesID string, force bool) (SyncResult, error) {
	ix := r.Get(ctx, seriesID)
	if ix == nil {
		return SyncResult{}, domain.ErrSeriesRequired
	}
	return ix.Sync(ctx, force)
}
