package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/recall/internal/api/handlers"
	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/database"
	"github.com/cloo-solutions/recall/internal/jobs"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/registry"
	"github.com/cloo-solutions/recall/internal/server"
	"github.com/cloo-solutions/recall/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the recall API server: bot control, platform webhooks and live meeting sessions",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides RECALL_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Warn("telemetry init failed, continuing without tracing", "error", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if a.pool != nil && !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	sessions := registry.New()
	memories := func(ctx context.Context, seriesID string) handlers.SeriesMemory {
		if ix := a.memory(ctx, seriesID); ix != nil {
			return ix
		}
		return nil
	}
	newResponder := func(l *logger.Logger) *conversation.Responder {
		if a.gen == nil {
			return conversation.NewResponder(nil, l)
		}
		return conversation.NewResponder(a.gen, l)
	}

	router := server.NewRouter(server.RouterConfig{
		BotHandler: handlers.NewBotHandler(a.platform, sessions, handlers.BotHandlerConfig{
			ClientURL: cfg.ClientURL,
			ServerURL: cfg.ServerURL,
		}, log),
		SeriesHandler:  handlers.NewSeriesHandler(memories, log),
		WebhookHandler: handlers.NewWebhookHandler(memories, sessions, a.platform, log),
		LiveHandler: handlers.NewLiveHandler(memories, sessions, a.platform, newResponder, handlers.LiveConfig{
			ResponseDelay: cfg.ResponseDelay,
			TopK:          cfg.TopK,
			Threshold:     cfg.SimilarityThreshold,
		}, log),
		Log: log,
	})

	var syncWorker *jobs.Worker
	if cfg.SyncInterval > 0 && a.indexes != nil {
		syncWorker = jobs.NewWorker(jobs.NewSeriesSyncProcessor(a.indexes, cfg.SyncConcurrency, log), cfg.SyncInterval, log)
		go syncWorker.Start(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", cfg.Port, "storage", cfg.StorageBackend, "memory", a.indexes != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited", "open_sessions", sessions.Len())
	return nil
}
