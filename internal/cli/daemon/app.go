// Package daemon holds the recalld commands.
package daemon

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/config"
	"github.com/cloo-solutions/recall/internal/database"
	"github.com/cloo-solutions/recall/internal/indexer"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/openai"
	"github.com/cloo-solutions/recall/internal/platform"
	"github.com/cloo-solutions/recall/internal/repository"
	"github.com/cloo-solutions/recall/internal/storage"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

// app is the set of collaborators every daemon command builds from config.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	platform *platform.Client
	// gen is nil without an OpenAI key.
	gen     *openai.Client
	indexes *indexer.Registry
	pool    *pgxpool.Pool
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{
		cfg: cfg,
		log: log,
		platform: platform.NewClient(platform.Config{
			BaseURL:         cfg.PlatformURL(),
			APIKey:          cfg.PlatformAPIKey,
			ControlTimeout:  cfg.ControlTimeout,
			TransferTimeout: cfg.TransferTimeout,
		}),
	}

	vectors, items, err := a.persisters(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.HasOpenAI() {
		a.gen = openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			ChatModel:      cfg.OpenAIChatModel,
			SpeechModel:    cfg.OpenAITTSModel,
			SpeechVoice:    cfg.OpenAITTSVoice,
		})
		a.indexes = indexer.NewRegistry(a.platform, a.gen, vectors, items, log, indexer.Options{
			ChunkSize: cfg.ChunkSize,
			TopK:      cfg.TopK,
			Threshold: cfg.SimilarityThreshold,
		})
	} else {
		log.Warn("OPENAI_API_KEY not set: series memory and generated replies are disabled")
	}

	return a, nil
}

// persisters selects where series records live.
func (a *app) persisters(ctx context.Context) (vectorstore.Persister, actionitems.Persister, error) {
	switch a.cfg.StorageBackend {
	case config.StorageS3:
		store, err := storage.NewS3Store(ctx, storage.S3ClientConfig{
			Endpoint:        a.cfg.S3Endpoint,
			Region:          a.cfg.S3Region,
			AccessKeyID:     a.cfg.S3AccessKey,
			SecretAccessKey: a.cfg.S3SecretKey,
			Bucket:          a.cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		a.log.Info("series records stored in S3", "bucket", a.cfg.S3Bucket)
		records := storage.NewJSONRecords(store)
		return records, records, nil

	case config.StoragePostgres:
		pool, err := database.NewPool(ctx, database.Config{URL: a.cfg.DatabaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.pool = pool
		a.log.Info("series records stored in postgres")
		return repository.NewSeriesRecordRepository(pool), repository.NewActionItemRepository(pool), nil

	default:
		a.log.Info("series records stored on disk", "dir", a.cfg.DataDir)
		records := storage.NewJSONRecords(storage.NewFileStore(a.cfg.DataDir))
		return records, records, nil
	}
}

// memory resolves a series indexer, or nil when memory is disabled or the
// series id is empty.
func (a *app) memory(ctx context.Context, seriesID string) *indexer.Indexer {
	if a.indexes == nil {
		return nil
	}
	return a.indexes.Get(ctx, seriesID)
}

func (a *app) requireMemory(ctx context.Context, seriesID string) (*indexer.Indexer, error) {
	if a.indexes == nil {
		return nil, fmt.Errorf("series memory requires RECALL_OPENAI_API_KEY")
	}
	ix := a.indexes.Get(ctx, seriesID)
	if ix == nil {
		return nil, fmt.Errorf("a recurring meeting id is required")
	}
	return ix, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	a.log.Sync()
}
