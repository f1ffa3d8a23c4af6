package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cloo-solutions/recall/internal/api"
	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/platform"
)

// Webhook outcomes reported back to the platform.
const (
	webhookAcknowledged = "acknowledged"
	webhookIndexed      = "indexed"
	webhookIsolated     = "isolated"
	webhookForwarded    = "forwarded"
	webhookNoSession    = "no_handler"
	webhookNoWords      = "no_words"
	webhookIgnored      = "ignored"
	webhookRemoved      = "removed"
	webhookError        = "error"
)

// SessionResolver finds the live session a platform event belongs to.
type SessionResolver interface {
	Resolve(botID, projectID string) *conversation.Session
}

type ChatPlatform interface {
	RemoveBot(ctx context.Context, id string) error
	SendChatMessage(ctx context.Context, id, message, to string) error
}

// WebhookHandler receives platform callbacks. Each endpoint answers 200 with
// a status so the platform does not retry events that were understood.
type WebhookHandler struct {
	memories MemoryResolver
	sessions SessionResolver
	platform ChatPlatform
	log      *logger.Logger
}

func NewWebhookHandler(memories MemoryResolver, sessions SessionResolver, p ChatPlatform, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookHandler{memories: memories, sessions: sessions, platform: p, log: log}
}

type WebhookResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Indexed   *int   `json:"indexed,omitempty"`
	TotalBots *int   `json:"total_bots,omitempty"`
	SeriesID  string `json:"recurring_meeting_id,omitempty"`
	BotID     string `json:"bot_id,omitempty"`
}

func webhookStatus(w http.ResponseWriter, resp WebhookResponse) {
	api.JSON(w, http.StatusOK, resp)
}

// Event syncs a series once one of its meetings finished processing.
func (h *WebhookHandler) Event(w http.ResponseWriter, r *http.Request) {
	var ev platform.StatusEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if !ev.Completed() {
		webhookStatus(w, WebhookResponse{Status: webhookAcknowledged})
		return
	}

	seriesID := ev.SeriesID()
	mem := h.memories(r.Context(), seriesID)
	if mem == nil {
		webhookStatus(w, WebhookResponse{Status: webhookIsolated, BotID: ev.Data.BotID})
		return
	}

	result, err := mem.Sync(r.Context(), false)
	if err != nil {
		h.log.Error("webhook sync failed", "series_id", seriesID, "bot_id", ev.Data.BotID, "error", err)
		webhookStatus(w, WebhookResponse{Status: webhookError, Message: "sync failed"})
		return
	}

	h.log.Info("meeting finished, series synced", "series_id", seriesID, "bot_id", ev.Data.BotID, "indexed", result.Indexed)
	webhookStatus(w, WebhookResponse{
		Status:    webhookIndexed,
		SeriesID:  seriesID,
		Indexed:   &result.Indexed,
		TotalBots: &result.TotalSources,
	})
}

// Transcript forwards realtime words to the session serving the bot, or the
// project's session when the bot is not yet bound.
func (h *WebhookHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	var ev platform.TranscriptEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	session := h.sessions.Resolve(ev.Data.BotID, ev.ProjectID())
	if session == nil {
		webhookStatus(w, WebhookResponse{Status: webhookNoSession})
		return
	}

	text := ev.Text()
	if text == "" {
		webhookStatus(w, WebhookResponse{Status: webhookNoWords})
		return
	}

	session.HandleTranscript(r.Context(), ev.Speaker(), text, true)
	webhookStatus(w, WebhookResponse{Status: webhookForwarded})
}

// Chat removes the bot when a participant sends a remove command.
func (h *WebhookHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var ev platform.ChatEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if ev.Event != platform.EventChatMessage {
		webhookStatus(w, WebhookResponse{Status: webhookIgnored})
		return
	}
	if !conversation.IsChatRemoveCommand(ev.Command()) {
		webhookStatus(w, WebhookResponse{Status: webhookAcknowledged})
		return
	}

	botID := ev.Data.BotID
	sender := ev.Sender()
	h.log.Info("remove command received", "bot_id", botID, "sender", sender)

	goodbye := fmt.Sprintf("Goodbye! Leaving as requested by %s.", sender)
	if err := h.platform.SendChatMessage(r.Context(), botID, goodbye, platform.SendToEveryone); err != nil {
		h.log.Warn("failed to send goodbye message", "bot_id", botID, "error", err)
	}

	if err := h.platform.RemoveBot(r.Context(), botID); err != nil {
		h.log.Error("failed to remove bot", "bot_id", botID, "error", err)
		webhookStatus(w, WebhookResponse{Status: webhookError, Message: "remove failed", BotID: botID})
		return
	}
	webhookStatus(w, WebhookResponse{Status: webhookRemoved, BotID: botID})
}
