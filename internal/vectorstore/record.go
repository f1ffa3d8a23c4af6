package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/recall/internal/domain"
)

// Persister stores and restores the vector record of one series.
// LoadVectors returns domain.ErrStorageNotFound when no record exists.
type Persister interface {
	LoadVectors(ctx context.Context, seriesID string) (*Record, error)
	SaveVectors(ctx context.Context, seriesID string, rec *Record) error
}

// Record is the durable form of a Store.
type Record struct {
	IndexedSourceIDs []string      `json:"indexedSourceIds"`
	Chunks           []RecordChunk `json:"chunks"`
}

type RecordChunk struct {
	SourceID  string    `json:"sourceId"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Title     string    `json:"title"`
	Timestamp string    `json:"timestamp"`
	SeriesID  *string   `json:"seriesId"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// FormatTimestamp renders a chunk timestamp in ISO-8601.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ToRecordChunk converts a domain chunk into its persisted form.
func ToRecordChunk(c domain.Chunk) RecordChunk {
	rc := RecordChunk{
		SourceID:  c.SourceID,
		Text:      c.Text,
		Embedding: c.Embedding,
		Title:     c.Title,
		Timestamp: FormatTimestamp(c.Timestamp),
	}
	if c.SeriesID != "" {
		series := c.SeriesID
		rc.SeriesID = &series
	}
	return rc
}

// FromRecordChunk converts a persisted chunk back into a domain chunk.
func FromRecordChunk(rc RecordChunk) (domain.Chunk, error) {
	ts, err := ParseTimestamp(rc.Timestamp)
	if err != nil {
		return domain.Chunk{}, err
	}
	c := domain.NewChunk(rc.SourceID, rc.Text, rc.Embedding, "", rc.Title, ts)
	if rc.SeriesID != nil {
		c.SeriesID = *rc.SeriesID
	}
	return c, nil
}
