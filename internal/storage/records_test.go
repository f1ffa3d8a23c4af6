package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

func TestFileStore_GetMissing(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	_, err := fs.Get(context.Background(), "series/x/vectors.json")
	assert.ErrorIs(t, err, domain.ErrStorageNotFound)
}

func TestFileStore_PutGetDelete(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "series/s1/vectors.json", []byte(`{"a":1}`)))
	_, err := os.Stat(filepath.Join(root, "series", "s1", "vectors.json"))
	require.NoError(t, err)

	data, err := fs.Get(ctx, "series/s1/vectors.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	require.NoError(t, fs.Put(ctx, "series/s1/vectors.json", []byte(`{"a":2}`)))
	data, err = fs.Get(ctx, "series/s1/vectors.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	require.NoError(t, fs.Delete(ctx, "series/s1/vectors.json"))
	require.NoError(t, fs.Delete(ctx, "series/s1/vectors.json"))
	_, err = fs.Get(ctx, "series/s1/vectors.json")
	assert.ErrorIs(t, err, domain.ErrStorageNotFound)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	assert.Error(t, fs.Put(context.Background(), "../outside.json", []byte("x")))
	_, err := fs.Get(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestJSONRecords_VectorLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	records := NewJSONRecords(NewFileStore(root))

	series := "series-1"
	rec := &vectorstore.Record{
		IndexedSourceIDs: []string{"bot-1"},
		Chunks: []vectorstore.RecordChunk{{
			SourceID:  "bot-1",
			Text:      "Alice: hello",
			Embedding: []float32{0.5, 0.25},
			Title:     "Zoom Meeting (Mar 01)",
			Timestamp: "2024-03-01T10:00:00Z",
			SeriesID:  &series,
		}},
	}
	require.NoError(t, records.SaveVectors(ctx, series, rec))

	raw, err := os.ReadFile(filepath.Join(root, "series", series, "vectors.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "indexedSourceIds")
	chunk := doc["chunks"].([]any)[0].(map[string]any)
	for _, key := range []string{"sourceId", "text", "embedding", "title", "timestamp", "seriesId"} {
		assert.Contains(t, chunk, key)
	}

	loaded, err := records.LoadVectors(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestJSONRecords_CorruptVectors(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())
	require.NoError(t, fs.Put(ctx, VectorsKey("s1"), []byte("{not json")))

	_, err := NewJSONRecords(fs).LoadVectors(ctx, "s1")
	assert.Error(t, err)
}

func TestJSONRecords_StoreLoadsEmptyFromCorruptRecord(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())
	require.NoError(t, fs.Put(ctx, VectorsKey("s1"), []byte("garbage")))

	store := vectorstore.New("s1", NewJSONRecords(fs), nil)
	store.Load(ctx)
	assert.Equal(t, 0, store.Len())
}

func TestJSONRecords_ActionItems(t *testing.T) {
	ctx := context.Background()
	records := NewJSONRecords(NewFileStore(t.TempDir()))

	_, err := records.LoadActionItems(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStorageNotFound)

	items := []domain.ActionItem{{
		ID:          "a1",
		SeriesID:    "s1",
		SourceID:    "bot-1",
		Text:        "send the deck",
		PatternName: "remind me",
		Assignee:    "Bob",
		Status:      domain.ActionItemStatusPending,
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, records.SaveActionItems(ctx, "s1", items))

	loaded, err := records.LoadActionItems(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, items, loaded)

	store := actionitems.NewStore("s1", records, nil)
	store.Load(ctx)
	assert.Equal(t, 1, store.Len())
}
