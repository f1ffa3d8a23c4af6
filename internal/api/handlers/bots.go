package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/recall/internal/api"
	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/platform"
)

type BotPlatform interface {
	CreateBot(ctx context.Context, req platform.CreateBotRequest) (*domain.Bot, error)
	GetBot(ctx context.Context, id string) (*domain.Bot, error)
	ListProjectBots(ctx context.Context, projectID string) ([]domain.Bot, error)
	RemoveBot(ctx context.Context, id string) error
	SendChatMessage(ctx context.Context, id, message, to string) error
}

// BotSessions records bot ownership and finds sessions that connected
// before their bot was created.
type BotSessions interface {
	SetProjectBot(projectID, botID string)
	SessionForProject(projectID string) *conversation.Session
}

type BotHandlerConfig struct {
	// ClientURL is the page the bot renders as its camera and audio output.
	ClientURL string
	// ServerURL is this server's public base URL.
	ServerURL string
}

type BotHandler struct {
	platform BotPlatform
	sessions BotSessions
	cfg      BotHandlerConfig
	log      *logger.Logger
}

func NewBotHandler(p BotPlatform, sessions BotSessions, cfg BotHandlerConfig, log *logger.Logger) *BotHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BotHandler{platform: p, sessions: sessions, cfg: cfg, log: log}
}

type CreateBotRequest struct {
	ProjectID          string `json:"project_id"`
	MeetingURL         string `json:"meeting_url"`
	BotName            string `json:"bot_name"`
	RecurringMeetingID string `json:"recurring_meeting_id"`
}

type CreateBotResponse struct {
	BotID              string `json:"bot_id"`
	MeetingURL         string `json:"meeting_url"`
	ProjectID          string `json:"project_id"`
	RecurringMeetingID string `json:"recurring_meeting_id,omitempty"`
	Status             string `json:"status"`
}

type BotResponse struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status"`
	ProjectID          string  `json:"project_id,omitempty"`
	RecurringMeetingID string  `json:"recurring_meeting_id,omitempty"`
	MeetingURL         string  `json:"meeting_url,omitempty"`
	CreatedAt          *string `json:"created_at"`
	HasTranscript      bool    `json:"has_transcript"`
}

func botToResponse(b domain.Bot) BotResponse {
	resp := BotResponse{
		ID:                 b.ID,
		Status:             b.Status,
		ProjectID:          b.ProjectID,
		RecurringMeetingID: b.SeriesID,
		MeetingURL:         b.MeetingURL,
		HasTranscript:      b.TranscriptURL != "",
	}
	if b.CreatedAt != nil {
		ts := b.CreatedAt.UTC().Format(time.RFC3339)
		resp.CreatedAt = &ts
	}
	return resp
}

// outputMediaURL builds the client page URL the bot loads, pointing it back
// at this server's live session endpoint.
func (h *BotHandler) outputMediaURL(projectID, seriesID string) string {
	wsHost := strings.TrimPrefix(strings.TrimPrefix(h.cfg.ServerURL, "https://"), "http://")

	q := url.Values{}
	q.Set("project_id", projectID)
	q.Set("ws_host", wsHost)
	if seriesID != "" {
		q.Set("recurring_meeting_id", seriesID)
	}
	return h.cfg.ClientURL + "?" + q.Encode()
}

func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" {
		api.Error(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.MeetingURL == "" {
		api.Error(w, http.StatusBadRequest, "meeting_url is required")
		return
	}

	bot, err := h.platform.CreateBot(r.Context(), platform.CreateBotRequest{
		MeetingURL:     req.MeetingURL,
		ProjectID:      req.ProjectID,
		SeriesID:       req.RecurringMeetingID,
		BotName:        req.BotName,
		OutputMediaURL: h.outputMediaURL(req.ProjectID, req.RecurringMeetingID),
		WebhookURL:     strings.TrimSuffix(h.cfg.ServerURL, "/") + "/webhooks/recall/transcript",
		JoinMessage:    platform.DefaultJoinMessage,
	})
	if err != nil {
		h.log.Error("bot creation failed", "project_id", req.ProjectID, "error", err)
		handlePlatformError(w, err, "failed to create bot")
		return
	}

	h.sessions.SetProjectBot(req.ProjectID, bot.ID)

	// The bot's page may have connected before the platform answered.
	if s := h.sessions.SessionForProject(req.ProjectID); s != nil {
		s.SetBotID(bot.ID)
	}

	h.log.Info("bot created", "bot_id", bot.ID, "project_id", req.ProjectID, "series_id", req.RecurringMeetingID)
	api.Success(w, http.StatusCreated, CreateBotResponse{
		BotID:              bot.ID,
		MeetingURL:         req.MeetingURL,
		ProjectID:          req.ProjectID,
		RecurringMeetingID: req.RecurringMeetingID,
		Status:             bot.Status,
	})
}

func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	bot, err := h.platform.GetBot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handlePlatformError(w, err, "failed to get bot")
		return
	}
	api.Success(w, http.StatusOK, botToResponse(*bot))
}

type ChatMessageRequest struct {
	Message string `json:"message"`
	SendTo  string `json:"send_to"`
}

func (h *BotHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := h.platform.SendChatMessage(r.Context(), chi.URLParam(r, "id"), req.Message, req.SendTo); err != nil {
		handlePlatformError(w, err, "failed to send chat message")
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *BotHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.platform.RemoveBot(r.Context(), id); err != nil {
		handlePlatformError(w, err, "failed to remove bot")
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "removed", "bot_id": id})
}

type ProjectBotsResponse struct {
	ProjectID string        `json:"project_id"`
	Count     int           `json:"count"`
	Bots      []BotResponse `json:"bots"`
}

func (h *BotHandler) ListProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	bots, err := h.platform.ListProjectBots(r.Context(), projectID)
	if err != nil {
		handlePlatformError(w, err, "failed to list bots")
		return
	}

	resp := ProjectBotsResponse{ProjectID: projectID, Count: len(bots), Bots: make([]BotResponse, 0, len(bots))}
	for _, b := range bots {
		resp.Bots = append(resp.Bots, botToResponse(b))
	}
	api.Success(w, http.StatusOK, resp)
}
