package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/config"
	"github.com/corali-systems/docsearchai/internal/gemini"
	"github.com/corali-systems/docsearchai/internal/ocr"
	"github.com/corali-systems/docsearchai/internal/qdrant"
	"github.com/corali-systems/docsearchai/internal/service"
	"github.com/corali-systems/docsearchai/internal/sparse"
	"github.com/corali-systems/docsearchai/internal/summarizer"
)

// app bundles the wired pipeline shared by the serve, ingest, and search
// commands.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *qdrant.Store
	ingest *service.IngestService
	search *service.SearchService
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildApp loads config and wires every pipeline component. The returned
// cleanup function flushes the logger.
func buildApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	cleanup := func() { _ = log.Sync() }

	embedder := gemini.NewClient(gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.EmbedModel,
		Dimensions: cfg.EmbedDim,
		BatchSize:  cfg.EmbedBatchSize,
		MaxRetries: cfg.EmbedMaxRetries,
		Logger:     log.Named("gemini"),
	})

	vectorizer := sparse.NewVectorizer(log.Named("sparse"))

	store := qdrant.NewStore(qdrant.Config{
		BaseURL:    cfg.QdrantURL(),
		Dimensions: cfg.EmbedDim,
		Logger:     log.Named("qdrant"),
	}, vectorizer)

	ocrClient := ocr.NewClient(ocr.Config{Endpoint: cfg.OCREndpoint})

	ingestSvc := service.NewIngestService(
		ocrClient,
		summarizer.FromConfig(cfg, log.Named("summarizer")),
		embedder,
		store,
		service.IngestConfig{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			EmbedDim:     cfg.EmbedDim,
		},
		log.Named("ingest"),
	)

	searchSvc := service.NewSearchService(embedder, vectorizer, store, log.Named("search"))

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		ingest: ingestSvc,
		search: searchSvc,
	}, cleanup, nil
}
