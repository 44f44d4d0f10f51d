// Package gemini wraps the Gemini embedding API behind a batched,
// retrying client. Embedding failures are load-bearing for search quality,
// so exhausted retries propagate to the caller instead of degrading.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// EmbedTask selects the provider-side optimization for the embedding.
type EmbedTask string

const (
	// TaskDocument embeds text for indexing.
	TaskDocument EmbedTask = "RETRIEVAL_DOCUMENT"
	// TaskQuery embeds text for querying an existing index.
	TaskQuery EmbedTask = "RETRIEVAL_QUERY"
)

var (
	// ErrNoAPIKey is returned when the Gemini API key is not configured.
	// This is a fail-fast misconfiguration, never retried.
	ErrNoAPIKey = errors.New("GEMINI_API_KEY is not configured")
	// ErrBatchSizeMismatch flags a provider response whose vector count
	// differs from the request batch. Retried like any transient error.
	ErrBatchSizeMismatch = errors.New("embedding response size mismatch")
)

// EmbeddingAPI is the provider call made once per batch.
type EmbeddingAPI interface {
	EmbedContent(ctx context.Context, model string, texts []string, task EmbedTask, dim int) ([][]float32, error)
}

// Config holds explicit client configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	MaxRetries int
	Logger     *zap.Logger
}

// Client batches texts against the embedding provider, preserving input
// order across batches.
type Client struct {
	cfg Config
	log *zap.Logger

	initOnce sync.Once
	api      EmbeddingAPI
	initErr  error

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client whose underlying provider handle is
// initialized lazily on first use.
func NewClient(cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:   cfg,
		log:   cfg.Logger,
		sleep: sleepContext,
	}
}

func newClientWithAPI(api EmbeddingAPI, cfg Config) *Client {
	c := NewClient(cfg)
	c.initOnce.Do(func() { c.api = api })
	return c
}

func (c *Client) getAPI(ctx context.Context) (EmbeddingAPI, error) {
	if c.cfg.APIKey == "" && c.api == nil {
		return nil, ErrNoAPIKey
	}
	c.initOnce.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.api = &genaiAdapter{client: client}
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	return c.api, nil
}

// EmbedTexts embeds texts in configured-size batches. The output order
// mirrors the input order, including across batches. Per batch, provider
// client errors back off linearly and everything else backs off
// exponentially with jitter; exhausting retries propagates the error.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	api, err := c.getAPI(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchVectors, err := c.embedBatch(ctx, api, batch, task)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batchVectors...)
	}

	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, api EmbeddingAPI, batch []string, task EmbedTask) ([][]float32, error) {
	attempts := c.cfg.MaxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		vectors, err := api.EmbedContent(ctx, c.cfg.Model, batch, task, c.cfg.Dimensions)
		if err == nil {
			if len(vectors) != len(batch) {
				err = ErrBatchSizeMismatch
			} else if err = c.validateDimensions(vectors); err == nil {
				return vectors, nil
			}
		}

		if attempt >= attempts {
			return nil, fmt.Errorf("embedding failed after %d attempts: %w", attempts, err)
		}

		var wait time.Duration
		if isClientError(err) {
			wait = time.Duration(1+attempt*2) * time.Second
			c.log.Warn("embedding client error",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		} else {
			wait = expBackoff(attempt)
			c.log.Warn("embedding error",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		}

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts", attempts)
}

func (c *Client) validateDimensions(vectors [][]float32) error {
	if c.cfg.Dimensions <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != c.cfg.Dimensions {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), c.cfg.Dimensions)
		}
	}
	return nil
}

// isClientError reports whether the provider flagged the request itself
// (malformed request, rate limit) rather than failing on its side.
func isClientError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500
	}
	return false
}

func expBackoff(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt)) + rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type genaiAdapter struct {
	client *genai.Client
}

func (a *genaiAdapter) EmbedContent(ctx context.Context, model string, texts []string, task EmbedTask, dim int) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	cfg := &genai.EmbedContentConfig{
		TaskType: string(task),
	}
	if dim > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(dim))
	}

	resp, err := a.client.Models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		if embedding == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, embedding.Values)
	}
	return vectors, nil
}
