package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

// BlobStore is durable key/value storage for serialized records.
// Get returns domain.ErrStorageNotFound for an unknown key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// JSONRecords persists vector and action item records as JSON documents in a
// BlobStore.
type JSONRecords struct {
	blobs BlobStore
}

func NewJSONRecords(blobs BlobStore) *JSONRecords {
	return &JSONRecords{blobs: blobs}
}

func VectorsKey(seriesID string) string {
	return fmt.Sprintf("series/%s/vectors.json", seriesID)
}

func ActionItemsKey(seriesID string) string {
	return fmt.Sprintf("series/%s/action_items.json", seriesID)
}

func (r *JSONRecords) LoadVectors(ctx context.Context, seriesID string) (*vectorstore.Record, error) {
	data, err := r.blobs.Get(ctx, VectorsKey(seriesID))
	if err != nil {
		return nil, err
	}
	var rec vectorstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode vector record: %w", err)
	}
	return &rec, nil
}

func (r *JSONRecords) SaveVectors(ctx context.Context, seriesID string, rec *vectorstore.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode vector record: %w", err)
	}
	return r.blobs.Put(ctx, VectorsKey(seriesID), data)
}

func (r *JSONRecords) LoadActionItems(ctx context.Context, seriesID string) ([]domain.ActionItem, error) {
	data, err := r.blobs.Get(ctx, ActionItemsKey(seriesID))
	if err != nil {
		return nil, err
	}
	var recs []actionitems.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}

	items := make([]domain.ActionItem, 0, len(recs))
	for i, rec := range recs {
		item, err := actionitems.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("action item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *JSONRecords) SaveActionItems(ctx context.Context, seriesID string, items []domain.ActionItem) error {
	recs := make([]actionitems.Record, 0, len(items))
	for _, item := range items {
		recs = append(recs, actionitems.ToRecord(item))
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode action items: %w", err)
	}
	return r.blobs.Put(ctx, ActionItemsKey(seriesID), data)
}
