package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/recall/internal/api/handlers"
	"github.com/cloo-solutions/recall/internal/indexer"
	"github.com/cloo-solutions/recall/internal/platform"
	"github.com/cloo-solutions/recall/internal/registry"
	"github.com/cloo-solutions/recall/internal/storage"
)

// keywordEmbedder points texts mentioning "budget" one way and everything
// else the other.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "budget") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// fakePlatform serves one finished meeting of the "weekly" series.
func fakePlatform(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/bot/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "weekly", r.URL.Query().Get("metadata__recurring_meeting_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"next": nil,
			"results": []map[string]any{{
				"id":          "bot-old",
				"bot_name":    "Recall",
				"status":      "done",
				"meeting_url": "https://zoom.us/j/1",
				"created_at":  "2024-01-02T15:00:00Z",
				"metadata": map[string]string{
					"project_id":           "demo",
					"recurring_meeting_id": "weekly",
				},
				"recording": map[string]any{
					"id": "rec-1",
					"media_shortcuts": map[string]any{
						"transcript": map[string]any{"download_url": srv.URL + "/transcripts/bot-old"},
					},
				},
			}},
		})
	})

	mux.HandleFunc("/transcripts/bot-old", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"participant":{"id":1,"name":"Ana"},"words":[{"text":"The"},{"text":"budget"},{"text":"is"},{"text":"50k."}]},
			{"participant":{"id":2,"name":"Ben"},"words":[{"text":"Remind me to send the deck to finance."}]}
		]`))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupFlowRouter(t *testing.T) http.Handler {
	t.Helper()

	upstream := fakePlatform(t)
	client := platform.NewClient(platform.Config{BaseURL: upstream.URL, APIKey: "test-key"})

	records := storage.NewJSONRecords(storage.NewFileStore(t.TempDir()))
	indexes := indexer.NewRegistry(client, keywordEmbedder{}, records, records, nil, indexer.Options{TopK: 5, Threshold: 0.2})
	memories := func(ctx context.Context, id string) handlers.SeriesMemory {
		if ix := indexes.Get(ctx, id); ix != nil {
			return ix
		}
		return nil
	}

	sessions := registry.New()
	return NewRouter(RouterConfig{
		BotHandler:     handlers.NewBotHandler(client, sessions, handlers.BotHandlerConfig{}, nil),
		SeriesHandler:  handlers.NewSeriesHandler(memories, nil),
		WebhookHandler: handlers.NewWebhookHandler(memories, sessions, client, nil),
		LiveHandler:    handlers.NewLiveHandler(memories, sessions, client, nil, handlers.LiveConfig{}, nil),
	})
}

func serveJSON(t *testing.T, router http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestFlow_FinishedMeetingBecomesSeriesMemory(t *testing.T) {
	router := setupFlowRouter(t)

	code, resp := serveJSON(t, router, http.MethodPost, "/webhooks/recall",
		`{"event":"bot.status_change","data":{"bot_id":"bot-old","status":"done","metadata":{"recurring_meeting_id":"weekly"}}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "indexed", resp["status"])
	assert.Equal(t, float64(1), resp["indexed"])
	assert.Equal(t, float64(1), resp["total_bots"])

	code, resp = serveJSON(t, router, http.MethodGet, "/api/series/weekly/context?query=budget&sync=false", "")
	require.Equal(t, http.StatusOK, code)
	ctxData := resp["data"].(map[string]any)
	require.Equal(t, float64(1), ctxData["count"])
	first := ctxData["results"].([]any)[0].(map[string]any)
	assert.Contains(t, first["text"], "budget is 50k")
	assert.Contains(t, ctxData["context"], "budget is 50k")

	code, resp = serveJSON(t, router, http.MethodGet, "/api/series/weekly/action-items?status=pending", "")
	require.Equal(t, http.StatusOK, code)
	items := resp["data"].(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Contains(t, item["text"], "send the deck to finance")
	assert.Equal(t, "bot-old", item["source_id"])

	code, resp = serveJSON(t, router, http.MethodPost, "/api/series/weekly/action-items/"+item["id"].(string)+"/complete", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", resp["data"].(map[string]any)["status"])

	code, resp = serveJSON(t, router, http.MethodGet, "/api/series/weekly/action-items?status=pending", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp["data"].(map[string]any)["items"])
}

func TestFlow_SecondSyncSkipsIndexedMeetings(t *testing.T) {
	router := setupFlowRouter(t)

	code, resp := serveJSON(t, router, http.MethodPost, "/api/series/weekly/sync", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["data"].(map[string]any)["indexed"])

	code, resp = serveJSON(t, router, http.MethodPost, "/api/series/weekly/sync", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), resp["data"].(map[string]any)["indexed"])
	assert.Equal(t, float64(1), resp["data"].(map[string]any)["total_bots"])

	code, resp = serveJSON(t, router, http.MethodPost, "/api/series/weekly/sync?force=true", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["data"].(map[string]any)["indexed"])
}
