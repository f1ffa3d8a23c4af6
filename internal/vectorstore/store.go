package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/logger"
)

// epsilon keeps the cosine denominator non-zero for degenerate vectors.
const epsilon = 1e-10

// Store holds the embedded chunks of a single series and answers cosine
// similarity queries over them.
type Store struct {
	seriesID  string
	persister Persister
	log       *logger.Logger

	mu      sync.Mutex
	chunks  []domain.Chunk
	indexed map[string]struct{}
	dim     int

	// norms is derived from chunks and rebuilt on the next search after an
	// append. It is never persisted.
	norms []float64
	stale bool
}

// New creates an empty store for seriesID. persister may be nil for a
// memory-only store.
func New(seriesID string, persister Persister, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		seriesID:  seriesID,
		persister: persister,
		log:       log.With("series_id", seriesID),
		indexed:   make(map[string]struct{}),
	}
}

func (s *Store) SeriesID() string {
	return s.seriesID
}

// AddChunks appends chunks in order. Every embedding must share the
// dimensionality of the chunks already stored.
func (s *Store) AddChunks(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkChunks(s.dim, chunks)
	if err != nil {
		return err
	}
	s.dim = dim
	s.chunks = append(s.chunks, chunks...)
	s.stale = true
	return nil
}

// ReplaceSource drops every chunk of sourceID and appends chunks in their
// place, so re-indexing a source never duplicates its text.
func (s *Store) ReplaceSource(sourceID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0:0]
	for _, c := range s.chunks {
		if c.SourceID != sourceID {
			kept = append(kept, c)
		}
	}
	base := s.dim
	if len(kept) == 0 {
		base = 0
	}

	dim, err := checkChunks(base, chunks)
	if err != nil {
		return err
	}
	s.dim = dim
	s.chunks = append(kept, chunks...)
	s.stale = true
	return nil
}

// checkChunks validates chunks against the store dimension dim, or against
// the first chunk when dim is zero, and returns the resulting dimension.
func checkChunks(dim int, chunks []domain.Chunk) (int, error) {
	for i, c := range chunks {
		if err := domain.ValidateChunk(c); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return 0, fmt.Errorf("chunk %d has %d dimensions, want %d: %w", i, len(c.Embedding), dim, domain.ErrDimensionMismatch)
		}
	}
	return dim, nil
}

// Search scores every chunk against query and returns at most topK results
// with similarity >= threshold, best first. Equal scores keep insertion order.
func (s *Store) Search(query []float32, topK int, threshold float64) ([]domain.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunks) == 0 || topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query has %d dimensions, want %d: %w", len(query), s.dim, domain.ErrDimensionMismatch)
	}

	s.rebuildNorms()
	qNorm := norm(query)

	type scored struct {
		idx int
		sim float64
	}
	hits := make([]scored, 0, len(s.chunks))
	for i, c := range s.chunks {
		sim := dot(query, c.Embedding) / (qNorm*s.norms[i] + epsilon)
		if sim < threshold {
			continue
		}
		hits = append(hits, scored{idx: i, sim: sim})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].sim > hits[b].sim
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		c := s.chunks[h.idx]
		results = append(results, domain.SearchResult{
			Text:       c.Text,
			SourceID:   c.SourceID,
			Title:      c.Title,
			Timestamp:  c.Timestamp,
			Similarity: h.sim,
			SeriesID:   c.SeriesID,
		})
	}
	return results, nil
}

func (s *Store) rebuildNorms() {
	if !s.stale && len(s.norms) == len(s.chunks) {
		return
	}
	norms := make([]float64, len(s.chunks))
	for i, c := range s.chunks {
		norms[i] = norm(c.Embedding)
	}
	s.norms = norms
	s.stale = false
}

// IsIndexed reports whether sourceID has already been indexed.
func (s *Store) IsIndexed(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexed[sourceID]
	return ok
}

// MarkIndexed records sourceID as indexed.
func (s *Store) MarkIndexed(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed[sourceID] = struct{}{}
}

// IndexedCount returns the number of indexed sources.
func (s *Store) IndexedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.indexed)
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Chunks returns a copy of the stored chunks in insertion order.
func (s *Store) Chunks() []domain.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Snapshot builds the durable record of the store.
func (s *Store) Snapshot() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		IndexedSourceIDs: make([]string, 0, len(s.indexed)),
		Chunks:           make([]RecordChunk, 0, len(s.chunks)),
	}
	for id := range s.indexed {
		rec.IndexedSourceIDs = append(rec.IndexedSourceIDs, id)
	}
	sort.Strings(rec.IndexedSourceIDs)
	for _, c := range s.chunks {
		rec.Chunks = append(rec.Chunks, ToRecordChunk(c))
	}
	return rec
}

// Restore replaces the store contents with rec.
func (s *Store) Restore(rec *Record) error {
	chunks := make([]domain.Chunk, 0, len(rec.Chunks))
	for i, rc := range rec.Chunks {
		c, err := FromRecordChunk(rc)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, c)
	}
	dim, err := checkChunks(0, chunks)
	if err != nil {
		return err
	}

	indexed := make(map[string]struct{}, len(rec.IndexedSourceIDs))
	for _, id := range rec.IndexedSourceIDs {
		indexed[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = chunks
	s.indexed = indexed
	s.dim = dim
	s.stale = true
	return nil
}

// Save persists the store. A store without a persister is a no-op.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveVectors(ctx, s.seriesID, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to save vector store: %w", err)
	}
	return nil
}

// Load restores the store from its persister. A missing or unreadable record
// leaves the store empty and logs a warning.
func (s *Store) Load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	rec, err := s.persister.LoadVectors(ctx, s.seriesID)
	if err != nil {
		if errors.Is(err, domain.ErrStorageNotFound) {
			s.log.Warn("no stored vector record, starting empty")
		} else {
			s.log.Warn("failed to load vector record, starting empty", "error", err)
		}
		s.reset()
		return
	}

	if err := s.Restore(rec); err != nil {
		s.log.Warn("corrupt vector record, starting empty", "error", err)
		s.reset()
		return
	}

	s.log.Info("loaded vector store", "chunks", len(rec.Chunks), "indexed_sources", len(rec.IndexedSourceIDs))
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.indexed = make(map[string]struct{})
	s.dim = 0
	s.norms = nil
	s.stale = false
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
