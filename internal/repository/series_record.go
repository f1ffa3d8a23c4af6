package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

// SeriesRecordRepository persists vector store records in Postgres.
type SeriesRecordRepository struct {
	db dbtx
}

func NewSeriesRecordRepository(pool *pgxpool.Pool) *SeriesRecordRepository {
	return &SeriesRecordRepository{db: pool}
}

func NewSeriesRecordRepositoryWithTx(tx pgx.Tx) *SeriesRecordRepository {
	return &SeriesRecordRepository{db: tx}
}

// LoadVectors returns domain.ErrStorageNotFound when the series has neither
// indexed sources nor chunks.
func (r *SeriesRecordRepository) LoadVectors(ctx context.Context, seriesID string) (*vectorstore.Record, error) {
	rec := &vectorstore.Record{
		IndexedSourceIDs: []string{},
		Chunks:           []vectorstore.RecordChunk{},
	}

	rows, err := r.db.Query(ctx,
		`SELECT source_id FROM series_sources WHERE series_id = $1 ORDER BY source_id`,
		seriesID,
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		rec.IndexedSourceIDs = append(rec.IndexedSourceIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx,
		`SELECT source_id, text, embedding, title, chunk_series_id, created_at
		 FROM series_chunks WHERE series_id = $1 ORDER BY position`,
		seriesID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Chunk
		var emb pgvector.Vector
		var chunkSeries *string
		if err := rows.Scan(&c.SourceID, &c.Text, &emb, &c.Title, &chunkSeries, &c.Timestamp); err != nil {
			return nil, err
		}
		c.Embedding = emb.Slice()
		c.SeriesID = derefString(chunkSeries)
		rec.Chunks = append(rec.Chunks, vectorstore.ToRecordChunk(c))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(rec.IndexedSourceIDs) == 0 && len(rec.Chunks) == 0 {
		return nil, domain.ErrStorageNotFound
	}
	return rec, nil
}

// SaveVectors replaces the stored record of a series in one transaction.
func (r *SeriesRecordRepository) SaveVectors(ctx context.Context, seriesID string, rec *vectorstore.Record) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM series_chunks WHERE series_id = $1`, seriesID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM series_sources WHERE series_id = $1`, seriesID); err != nil {
			return err
		}

		for _, id := range rec.IndexedSourceIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO series_sources (series_id, source_id) VALUES ($1, $2)`,
				seriesID, id,
			); err != nil {
				return err
			}
		}

		for i, rc := range rec.Chunks {
			c, err := vectorstore.FromRecordChunk(rc)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO series_chunks
					(series_id, position, source_id, text, embedding, title, chunk_series_id, created_at)
				 VALUES
					($1, $2, $3, $4, $5, $6, $7, $8)`,
				seriesID,
				i,
				c.SourceID,
				c.Text,
				pgvector.NewVector(c.Embedding),
				c.Title,
				nullableString(c.SeriesID),
				c.Timestamp,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SeriesIDs lists every series with stored sources.
func (r *SeriesRecordRepository) SeriesIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT series_id FROM series_sources ORDER BY series_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
