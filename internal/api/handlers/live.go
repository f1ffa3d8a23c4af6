package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/logger"
)

const (
	liveReadLimit    = 64 * 1024
	liveWriteTimeout = 10 * time.Second
)

// LiveSessions tracks connected sessions and the bots serving them.
type LiveSessions interface {
	conversation.Directory
	Register(s *conversation.Session)
	Unregister(s *conversation.Session)
}

type LiveConfig struct {
	ResponseDelay time.Duration
	TopK          int
	Threshold     float64
	// OriginPatterns lists the hosts allowed to open a session. Empty allows
	// any origin.
	OriginPatterns []string
}

// LiveHandler serves the websocket used by the page the bot renders in the
// meeting. Each connection is one conversation session.
type LiveHandler struct {
	memories     MemoryResolver
	sessions     LiveSessions
	remover      conversation.BotRemover
	newResponder func(log *logger.Logger) *conversation.Responder
	cfg          LiveConfig
	log          *logger.Logger
}

func NewLiveHandler(
	memories MemoryResolver,
	sessions LiveSessions,
	remover conversation.BotRemover,
	newResponder func(log *logger.Logger) *conversation.Responder,
	cfg LiveConfig,
	log *logger.Logger,
) *LiveHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LiveHandler{
		memories:     memories,
		sessions:     sessions,
		remover:      remover,
		newResponder: newResponder,
		cfg:          cfg,
		log:          log,
	}
}

// wsSink writes session events to the websocket as JSON text frames.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, ev conversation.Event) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, ev)
}

func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	seriesID := r.URL.Query().Get("recurring_meeting_id")
	botID := r.URL.Query().Get("bot_id")
	if botID == "" {
		botID = h.sessions.BotForProject(projectID)
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns}
	if len(opts.OriginPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error("websocket accept failed", "project_id", projectID, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(liveReadLimit)

	ctx := r.Context()
	log := h.log.With("project_id", projectID)

	var memory conversation.Memory
	if mem := h.memories(ctx, seriesID); mem != nil {
		memory = mem
	}
	var responder *conversation.Responder
	if h.newResponder != nil {
		responder = h.newResponder(log)
	}

	session := conversation.NewSession(conversation.Config{
		ProjectID:     projectID,
		SeriesID:      seriesID,
		BotID:         botID,
		ResponseDelay: h.cfg.ResponseDelay,
		TopK:          h.cfg.TopK,
		Threshold:     h.cfg.Threshold,
	}, &wsSink{conn: conn}, conversation.Deps{
		Memory:    memory,
		Responder: responder,
		Remover:   h.remover,
		Directory: h.sessions,
		Log:       log,
	})

	h.sessions.Register(session)
	defer func() {
		h.sessions.Unregister(session)
		session.Close()
	}()
	log.Info("live session connected", "session_id", session.ID(), "bot_id", botID, "series_id", seriesID)

	session.Start(ctx)

	for {
		var msg conversation.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Info("live session disconnected", "session_id", session.ID())
			} else {
				log.Warn("live session read failed", "session_id", session.ID(), "error", err)
			}
			return
		}
		session.HandleMessage(ctx, msg)
	}
}
