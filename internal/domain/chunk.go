package domain

import (
	"fmt"
	"time"
)

// Chunk is an embedded span of transcript text. Chunks are immutable once
// created; an empty SeriesID marks a chunk from an isolated meeting.
type Chunk struct {
	SourceID  string
	Text      string
	Embedding []float32
	SeriesID  string
	Title     string
	Timestamp time.Time
}

// SearchResult is a chunk scored against a query embedding.
type SearchResult struct {
	Text       string
	SourceID   string
	Title      string
	Timestamp  time.Time
	Similarity float64
	SeriesID   string
}

// NewChunk creates a new Chunk instance
func NewChunk(sourceID, text string, embedding []float32, seriesID, title string, ts time.Time) Chunk {
	return Chunk{
		SourceID:  sourceID,
		Text:      text,
		Embedding: embedding,
		SeriesID:  seriesID,
		Title:     title,
		Timestamp: ts,
	}
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c Chunk) error {
	if c.SourceID == "" {
		return fmt.Errorf("chunk source ID is required")
	}
	if c.Text == "" {
		return fmt.Errorf("chunk text is required")
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk embedding is required")
	}
	return nil
}
