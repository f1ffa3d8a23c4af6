package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage backends for series records.
const (
	StorageFile     = "file"
	StorageS3       = "s3"
	StoragePostgres = "postgres"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogMode     string `envconfig:"LOG_MODE" default:"development"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY"`
	OpenAIEmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	OpenAIChatModel      string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	OpenAITTSModel       string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice       string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`

	PlatformAPIKey  string `envconfig:"PLATFORM_API_KEY" required:"true"`
	PlatformRegion  string `envconfig:"PLATFORM_REGION" default:"us-west-2"`
	PlatformBaseURL string `envconfig:"PLATFORM_BASE_URL"`

	ClientURL string `envconfig:"CLIENT_URL" default:"http://localhost:5173"`
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8000"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"file"`
	DataDir        string `envconfig:"DATA_DIR" default:"data"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"recall-memory"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.20"`
	TopK                int           `envconfig:"TOP_K" default:"5"`
	ChunkSize           int           `envconfig:"CHUNK_SIZE" default:"500"`
	ResponseDelay       time.Duration `envconfig:"RESPONSE_DELAY" default:"2s"`

	// SyncInterval of zero disables the background sync worker.
	SyncInterval    time.Duration `envconfig:"SYNC_INTERVAL" default:"0"`
	SyncConcurrency int           `envconfig:"SYNC_CONCURRENCY" default:"2"`

	ControlTimeout  time.Duration `envconfig:"CONTROL_TIMEOUT" default:"30s"`
	TransferTimeout time.Duration `envconfig:"TRANSFER_TIMEOUT" default:"60s"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("RECALL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid config: SIMILARITY_THRESHOLD must be within [0, 1], got %v", c.SimilarityThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("invalid config: TOP_K must be positive, got %d", c.TopK)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.SyncConcurrency <= 0 {
		c.SyncConcurrency = 1
	}

	switch c.StorageBackend {
	case StorageFile:
	case StorageS3:
		if !c.HasS3() {
			return fmt.Errorf("invalid config: STORAGE_BACKEND=s3 requires S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY")
		}
	case StoragePostgres:
		if !c.HasDatabase() {
			return fmt.Errorf("invalid config: STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// PlatformURL returns the meeting-platform API base URL.
func (c *Config) PlatformURL() string {
	if c.PlatformBaseURL != "" {
		return c.PlatformBaseURL
	}
	return fmt.Sprintf("https://%s.recall.ai/api/v1", c.PlatformRegion)
}
