package actionitems

import (
	"context"
	"time"

	"github.com/cloo-solutions/recall/internal/domain"
)

// Persister stores and restores the action items of one series.
// LoadActionItems returns domain.ErrStorageNotFound when nothing is stored.
type Persister interface {
	LoadActionItems(ctx context.Context, seriesID string) ([]domain.ActionItem, error)
	SaveActionItems(ctx context.Context, seriesID string, items []domain.ActionItem) error
}

// Record is the JSON form of an action item.
type Record struct {
	ID          string     `json:"item_id"`
	SeriesID    string     `json:"series_id"`
	SourceID    string     `json:"source_id"`
	Text        string     `json:"text"`
	PatternName string     `json:"pattern_matched"`
	Assignee    *string    `json:"assignee"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	SurfacedAt  *time.Time `json:"surfaced_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func ToRecord(item domain.ActionItem) Record {
	r := Record{
		ID:          item.ID,
		SeriesID:    item.SeriesID,
		SourceID:    item.SourceID,
		Text:        item.Text,
		PatternName: item.PatternName,
		Status:      string(item.Status),
		CreatedAt:   item.CreatedAt,
		SurfacedAt:  item.SurfacedAt,
		CompletedAt: item.CompletedAt,
	}
	if item.Assignee != "" {
		assignee := item.Assignee
		r.Assignee = &assignee
	}
	return r
}

func FromRecord(r Record) (domain.ActionItem, error) {
	status, err := domain.ParseActionItemStatus(r.Status)
	if err != nil {
		return domain.ActionItem{}, err
	}
	item := domain.ActionItem{
		ID:          r.ID,
		SeriesID:    r.SeriesID,
		SourceID:    r.SourceID,
		Text:        r.Text,
		PatternName: r.PatternName,
		Status:      status,
		CreatedAt:   r.CreatedAt,
		SurfacedAt:  r.SurfacedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.Assignee != nil {
		item.Assignee = *r.Assignee
	}
	return item, domain.ValidateActionItem(&item)
}
