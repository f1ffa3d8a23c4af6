package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/recall/internal/domain"
)

type ActionItemRepository struct {
	db dbtx
}

func NewActionItemRepository(pool *pgxpool.Pool) *ActionItemRepository {
	return &ActionItemRepository{db: pool}
}

func NewActionItemRepositoryWithTx(tx pgx.Tx) *ActionItemRepository {
	return &ActionItemRepository{db: tx}
}

const actionItemColumns = `id, series_id, source_id, text, pattern_name, assignee, status, created_at, surfaced_at, completed_at`

func (r *ActionItemRepository) LoadActionItems(ctx context.Context, seriesID string) ([]domain.ActionItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE series_id = $1 ORDER BY position`,
		seriesID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanActionItemRows(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrStorageNotFound
	}
	return items, nil
}

// SaveActionItems replaces the series' items in one transaction.
func (r *ActionItemRepository) SaveActionItems(ctx context.Context, seriesID string, items []domain.ActionItem) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM action_items WHERE series_id = $1`, seriesID); err != nil {
			return err
		}
		for i, item := range items {
			_, err := tx.Exec(ctx,
				`INSERT INTO action_items
					(id, series_id, position, source_id, text, pattern_name, assignee, status, created_at, surfaced_at, completed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				item.ID, seriesID, i, item.SourceID, item.Text, item.PatternName,
				nullableString(item.Assignee), string(item.Status), item.CreatedAt, item.SurfacedAt, item.CompletedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ActionItemRepository) GetByID(ctx context.Context, id string) (*domain.ActionItem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+actionItemColumns+` FROM action_items WHERE id = $1`, id)
	item, err := scanActionItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActionItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func scanActionItem(row pgx.Row) (domain.ActionItem, error) {
	var item domain.ActionItem
	var assignee *string
	var status string
	err := row.Scan(&item.ID, &item.SeriesID, &item.SourceID, &item.Text, &item.PatternName,
		&assignee, &status, &item.CreatedAt, &item.SurfacedAt, &item.CompletedAt)
	if err != nil {
		return item, err
	}
	item.Assignee = derefString(assignee)
	item.Status = domain.ActionItemStatus(status)
	return item, nil
}

func scanActionItemRows(rows pgx.Rows) ([]domain.ActionItem, error) {
	var items []domain.ActionItem
	for rows.Next() {
		item, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
