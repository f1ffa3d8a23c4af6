package actionitems

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/logger"
)

// Store is the action item collection of one series. An item is rejected
// when its lowercased text is already present, whichever meeting it came from.
type Store struct {
	seriesID  string
	persister Persister
	log       *logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	items     map[string]*domain.ActionItem
	order     []string
	textIndex map[string]struct{}
	dirty     bool
}

func NewStore(seriesID string, persister Persister, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		seriesID:  seriesID,
		persister: persister,
		log:       log.With("series_id", seriesID),
		now:       func() time.Time { return time.Now().UTC() },
		items:     make(map[string]*domain.ActionItem),
		textIndex: make(map[string]struct{}),
	}
}

func (s *Store) SeriesID() string {
	return s.seriesID
}

// Add inserts item unless its normalized text is already stored.
func (s *Store) Add(item domain.ActionItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(item)
}

func (s *Store) addLocked(item domain.ActionItem) bool {
	key := normalize(item.Text)
	if _, dup := s.textIndex[key]; dup {
		return false
	}
	if _, exists := s.items[item.ID]; exists {
		return false
	}
	s.items[item.ID] = &item
	s.order = append(s.order, item.ID)
	s.textIndex[key] = struct{}{}
	s.dirty = true
	return true
}

// AddMany inserts items and returns how many were new.
func (s *Store) AddMany(items []domain.ActionItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, item := range items {
		if s.addLocked(item) {
			added++
		}
	}
	return added
}

func (s *Store) Get(id string) (domain.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ActionItem{}, domain.ErrActionItemNotFound
	}
	return *item, nil
}

// All returns every item in insertion order.
func (s *Store) All() []domain.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(func(*domain.ActionItem) bool { return true })
}

func (s *Store) ByStatus(status domain.ActionItemStatus) []domain.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(func(i *domain.ActionItem) bool { return i.Status == status })
}

func (s *Store) Pending() []domain.ActionItem {
	return s.ByStatus(domain.ActionItemStatusPending)
}

func (s *Store) filterLocked(keep func(*domain.ActionItem) bool) []domain.ActionItem {
	out := make([]domain.ActionItem, 0, len(s.order))
	for _, id := range s.order {
		if item := s.items[id]; keep(item) {
			out = append(out, *item)
		}
	}
	return out
}

// MarkSurfaced moves the given pending items to surfaced and returns how many
// changed. Unknown ids are ignored.
func (s *Store) MarkSurfaced(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	changed := 0
	for _, id := range ids {
		if item, ok := s.items[id]; ok && item.Surface(now) {
			changed++
		}
	}
	if changed > 0 {
		s.dirty = true
	}
	return changed
}

// Complete marks the item as completed.
func (s *Store) Complete(id string) (domain.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ActionItem{}, domain.ErrActionItemNotFound
	}
	if err := item.Complete(s.now()); err != nil {
		return *item, err
	}
	s.dirty = true
	return *item, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Load replaces the store contents with the persisted items. A missing or
// unreadable record leaves the store empty.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*domain.ActionItem)
	s.order = nil
	s.textIndex = make(map[string]struct{})
	s.dirty = false

	if s.persister == nil {
		return
	}

	items, err := s.persister.LoadActionItems(ctx, s.seriesID)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageNotFound) {
			s.log.Warn("failed to load action items, starting empty", "error", err)
		}
		return
	}
	for _, item := range items {
		s.addLocked(item)
	}
	s.dirty = false
	s.log.Debug("loaded action items", "count", len(s.items))
}

// Save persists the store if it changed since the last load or save.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.persister == nil {
		return nil
	}
	items := s.filterLocked(func(*domain.ActionItem) bool { return true })
	if err := s.persister.SaveActionItems(ctx, s.seriesID, items); err != nil {
		return fmt.Errorf("failed to save action items: %w", err)
	}
	s.dirty = false
	return nil
}

func normalize(text string) string {
	return strings.ToLower(text)
}
