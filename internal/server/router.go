package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/recall/internal/api"
	"github.com/cloo-solutions/recall/internal/api/handlers"
	"github.com/cloo-solutions/recall/internal/api/middleware"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/telemetry"
)

type RouterConfig struct {
	BotHandler     *handlers.BotHandler
	SeriesHandler  *handlers.SeriesHandler
	WebhookHandler *handlers.WebhookHandler
	LiveHandler    *handlers.LiveHandler
	Log            *logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/bot", func(r chi.Router) {
			r.Post("/", cfg.BotHandler.Create)
			r.Get("/{id}", cfg.BotHandler.Get)
			r.Post("/{id}/chat", cfg.BotHandler.Chat)
			r.Post("/{id}/leave", cfg.BotHandler.Leave)
		})

		r.Get("/projects/{project}/bots", cfg.BotHandler.ListProject)

		r.Route("/series/{series}", func(r chi.Router) {
			r.Get("/context", cfg.SeriesHandler.Context)
			r.Post("/sync", cfg.SeriesHandler.Sync)
			r.Get("/action-items", cfg.SeriesHandler.ListActionItems)
			r.Post("/action-items/{id}/complete", cfg.SeriesHandler.CompleteActionItem)
		})
	})

	r.Route("/webhooks/recall", func(r chi.Router) {
		r.Post("/", cfg.WebhookHandler.Event)
		r.Post("/transcript", cfg.WebhookHandler.Transcript)
		r.Post("/chat", cfg.WebhookHandler.Chat)
	})

	r.Get("/ws/{project}", cfg.LiveHandler.Serve)

	return r
}
