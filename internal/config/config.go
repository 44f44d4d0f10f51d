package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Summary provider selectors.
const (
	SummaryProviderGemini     = "GEMINI"
	SummaryProviderOpenRouter = "OPENROUTER"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Embeddings
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	EmbedModel      string `envconfig:"EMBED_MODEL" default:"gemini-embedding-001"`
	EmbedDim        int    `envconfig:"EMBED_DIM" default:"3072"`
	EmbedBatchSize  int    `envconfig:"EMBED_BATCH_SIZE" default:"16"`
	EmbedMaxRetries int    `envconfig:"EMBED_MAX_RETRIES" default:"4"`

	// Summarization
	SummaryProvider     string `envconfig:"SUMMARY_PROVIDER" default:"GEMINI"`
	SummaryModel        string `envconfig:"SUMMARY_MODEL" default:"gemini-2.0-flash"`
	SummaryMaxRetries   int    `envconfig:"SUMMARY_MAX_RETRIES" default:"3"`
	SummaryFallbackText string `envconfig:"SUMMARY_FALLBACK_TEXT" default:"Ringkasan tidak tersedia."`
	SkipSummary         bool   `envconfig:"SKIP_SUMMARY" default:"false"`
	OpenRouterAPIKey    string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterModel     string `envconfig:"OPENROUTER_MODEL" default:"openai/gpt-4o-mini"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Vector store
	QdrantHost string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort int    `envconfig:"QDRANT_PORT" default:"6333"`

	// OCR collaborator
	OCREndpoint string `envconfig:"OCR_ENDPOINT"`

	// PDF source bucket
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docsearch-inbox"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"pdf/"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Ingestion worker
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5m"`
	StatePath          string        `envconfig:"STATE_PATH" default:"ingestion_state.db"`

	// Telemetry
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCSEARCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in (0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.SummaryProvider != SummaryProviderGemini && cfg.SummaryProvider != SummaryProviderOpenRouter {
		return nil, fmt.Errorf("unknown summary provider %q", cfg.SummaryProvider)
	}

	return &cfg, nil
}

func (c *Config) QdrantURL() string {
	return fmt.Sprintf("http://%s:%d", c.QdrantHost, c.QdrantPort)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}
