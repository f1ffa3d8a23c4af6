package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/recall/internal/api"
	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/indexer"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/pagination"
)

const (
	defaultActionItemLimit = 50
	maxActionItemLimit     = 200
)

// SeriesMemory is the retrieval memory and action items of one recurring
// meeting series. *indexer.Indexer satisfies it.
type SeriesMemory interface {
	conversation.Memory
	ActionItemsByStatus(status domain.ActionItemStatus) []domain.ActionItem
	CompleteActionItem(ctx context.Context, id string) (domain.ActionItem, error)
}

// MemoryResolver returns the memory of a series, or nil when the series id
// is empty.
type MemoryResolver func(ctx context.Context, seriesID string) SeriesMemory

type SeriesHandler struct {
	memories MemoryResolver
	log      *logger.Logger
}

func NewSeriesHandler(memories MemoryResolver, log *logger.Logger) *SeriesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SeriesHandler{memories: memories, log: log}
}

type ContextResult struct {
	Text         string  `json:"text"`
	MeetingTitle string  `json:"meeting_title"`
	MeetingDate  string  `json:"meeting_date"`
	Similarity   float64 `json:"similarity"`
}

type ContextResponse struct {
	Query              string          `json:"query"`
	RecurringMeetingID string          `json:"recurring_meeting_id"`
	Count              int             `json:"count"`
	Results            []ContextResult `json:"results"`
	Context            string          `json:"context"`
}

func (h *SeriesHandler) memory(w http.ResponseWriter, r *http.Request) (string, SeriesMemory, bool) {
	seriesID := chi.URLParam(r, "series")
	mem := h.memories(r.Context(), seriesID)
	if mem == nil {
		api.HandleError(w, domain.ErrSeriesRequired)
		return seriesID, nil, false
	}
	return seriesID, mem, true
}

// Context searches the series memory. The series is synced first unless
// sync=false.
func (h *SeriesHandler) Context(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	autoSync := true
	if raw := r.URL.Query().Get("sync"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid sync parameter")
			return
		}
		autoSync = v
	}

	seriesID, mem, ok := h.memory(w, r)
	if !ok {
		return
	}

	results, err := mem.Query(r.Context(), query, indexer.QueryOptions{AutoSync: autoSync})
	if err != nil {
		h.log.Error("context query failed", "series_id", seriesID, "error", err)
		api.HandleError(w, err)
		return
	}

	resp := ContextResponse{
		Query:              query,
		RecurringMeetingID: seriesID,
		Count:              len(results),
		Results:            make([]ContextResult, 0, len(results)),
		Context:            indexer.FormatContext(results),
	}
	for _, res := range results {
		resp.Results = append(resp.Results, ContextResult{
			Text:         res.Text,
			MeetingTitle: res.Title,
			MeetingDate:  res.Timestamp.UTC().Format(time.RFC3339),
			Similarity:   res.Similarity,
		})
	}
	api.Success(w, http.StatusOK, resp)
}

type SyncResponse struct {
	RecurringMeetingID string `json:"recurring_meeting_id"`
	indexer.SyncResult
}

func (h *SeriesHandler) Sync(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid force parameter")
			return
		}
		force = v
	}

	seriesID, mem, ok := h.memory(w, r)
	if !ok {
		return
	}

	result, err := mem.Sync(r.Context(), force)
	if err != nil {
		h.log.Error("series sync failed", "series_id", seriesID, "error", err)
		handlePlatformError(w, err, "failed to sync series")
		return
	}
	api.Success(w, http.StatusOK, SyncResponse{RecurringMeetingID: seriesID, SyncResult: result})
}

type ActionItemResponse struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Assignee    string  `json:"assignee,omitempty"`
	Status      string  `json:"status"`
	SourceID    string  `json:"source_id"`
	Pattern     string  `json:"pattern,omitempty"`
	CreatedAt   string  `json:"created_at"`
	SurfacedAt  *string `json:"surfaced_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func actionItemToResponse(a domain.ActionItem) ActionItemResponse {
	return ActionItemResponse{
		ID:          a.ID,
		Text:        a.Text,
		Assignee:    a.Assignee,
		Status:      string(a.Status),
		SourceID:    a.SourceID,
		Pattern:     a.PatternName,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		SurfacedAt:  formatOptional(a.SurfacedAt),
		CompletedAt: formatOptional(a.CompletedAt),
	}
}

// ListActionItems pages through a series' action items, optionally filtered
// by status.
func (h *SeriesHandler) ListActionItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status domain.ActionItemStatus
	if raw := q.Get("status"); raw != "" {
		parsed, err := domain.ParseActionItemStatus(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid status: "+raw)
			return
		}
		status = parsed
	}

	limit := defaultActionItemLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(v, maxActionItemLimit)
	}

	cursor, err := pagination.DecodeCursor(q.Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	_, mem, ok := h.memory(w, r)
	if !ok {
		return
	}

	page := pagination.Paginate(mem.ActionItemsByStatus(status), limit, cursor,
		func(a domain.ActionItem) string { return a.ID },
		func(a domain.ActionItem) time.Time { return a.CreatedAt },
	)

	items := make([]ActionItemResponse, 0, len(page.Items))
	for _, a := range page.Items {
		items = append(items, actionItemToResponse(a))
	}
	api.Success(w, http.StatusOK, pagination.PageResult[ActionItemResponse]{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *SeriesHandler) CompleteActionItem(w http.ResponseWriter, r *http.Request) {
	seriesID, mem, ok := h.memory(w, r)
	if !ok {
		return
	}

	item, err := mem.CompleteActionItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Warn("complete action item failed", "series_id", seriesID, "error", err)
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, actionItemToResponse(item))
}
