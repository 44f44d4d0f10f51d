package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/chunker"
	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/gemini"
	"github.com/corali-systems/docsearchai/internal/hashing"
)

const (
	// dryRunVectorPreviewDims is how many leading dimensions of each
	// vector a dry-run payload exposes.
	dryRunVectorPreviewDims = 8
	// dryRunChunkSamples bounds the sample chunks in a dry-run payload.
	dryRunChunkSamples = 3
)

// TextExtractor is the external OCR collaborator.
type TextExtractor interface {
	Extract(ctx context.Context, pdfBytes []byte, filename string) (string, error)
}

// Summarizer produces a best-effort synopsis; it never fails.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

// EmbeddingClient generates dense vectors, order-preserving.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string, task gemini.EmbedTask) ([][]float32, error)
}

// DocumentReplacer is the store's atomic replace operation: delete any
// existing records for the file, insert the new document and chunks.
type DocumentReplacer interface {
	ReplaceDocument(ctx context.Context, fileID string, doc *domain.Document, docVector []float32, chunks []*domain.Chunk, chunkVectors [][]float32) error
}

// IngestConfig carries the pipeline's tunables.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	EmbedDim     int
}

// IngestService runs the ingestion pipeline for one document at a time.
// It is stateless and safe to invoke concurrently for distinct file IDs;
// single-writer-per-file is guaranteed by the surrounding state tracker.
type IngestService struct {
	ocr        TextExtractor
	summarizer Summarizer
	embedder   EmbeddingClient
	store      DocumentReplacer
	cfg        IngestConfig
	log        *zap.Logger
}

// NewIngestService creates an IngestService.
func NewIngestService(
	ocr TextExtractor,
	summarizer Summarizer,
	embedder EmbeddingClient,
	store DocumentReplacer,
	cfg IngestConfig,
	log *zap.Logger,
) *IngestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		ocr:        ocr,
		summarizer: summarizer,
		embedder:   embedder,
		store:      store,
		cfg:        cfg,
		log:        log,
	}
}

// ProcessDocument runs OCR, summarization, chunking, embedding, and the
// atomic store replace for one document. Every failure short-circuits the
// remaining steps and is reported in the result; a batch caller never
// sees an error for one bad document. With dryRun set, all computation
// runs but nothing is written; the result carries a preview instead.
func (s *IngestService) ProcessDocument(ctx context.Context, meta domain.FileMeta, pdfBytes []byte, dryRun bool) *domain.ProcessResult {
	fileName := meta.Name
	if fileName == "" {
		fileName = "document.pdf"
	}

	if meta.ID == "" {
		return &domain.ProcessResult{
			FileName: fileName,
			Error:    "missing file id",
		}
	}

	fail := func(chunkCount int, summary, errMsg string) *domain.ProcessResult {
		return &domain.ProcessResult{
			FileID:     meta.ID,
			FileName:   fileName,
			ChunkCount: chunkCount,
			Summary:    summary,
			Error:      errMsg,
		}
	}

	text, err := s.ocr.Extract(ctx, pdfBytes, fileName)
	if err != nil {
		s.log.Error("ocr failed", zap.String("file", fileName), zap.Error(err))
		return fail(0, "", err.Error())
	}
	if strings.TrimSpace(text) == "" {
		s.log.Warn("no text extracted", zap.String("file", fileName))
		return fail(0, "", "empty text after OCR")
	}

	summary := s.summarizer.Summarize(ctx, text)

	chunks, err := chunker.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return fail(0, summary, err.Error())
	}
	if len(chunks) == 0 {
		s.log.Warn("chunking produced no chunks", zap.String("file", fileName))
		return fail(0, summary, "no chunks generated")
	}

	docVectors, err := s.embedder.EmbedTexts(ctx, []string{text}, gemini.TaskDocument)
	if err != nil {
		s.log.Error("document embedding failed", zap.String("file", fileName), zap.Error(err))
		return fail(len(chunks), summary, fmt.Sprintf("embedding error: %v", err))
	}
	chunkVectors, err := s.embedder.EmbedTexts(ctx, chunks, gemini.TaskDocument)
	if err != nil {
		s.log.Error("chunk embedding failed", zap.String("file", fileName), zap.Error(err))
		return fail(len(chunks), summary, fmt.Sprintf("embedding error: %v", err))
	}

	if len(docVectors) == 0 || len(docVectors[0]) != s.cfg.EmbedDim {
		return fail(len(chunks), summary, "document embedding missing")
	}
	if len(chunkVectors) != len(chunks) {
		return fail(len(chunks), summary, "chunk embedding count mismatch")
	}
	docVector := docVectors[0]

	pathSegments := domain.SplitDrivePath(meta.DrivePath)
	doc := &domain.Document{
		FileID:       meta.ID,
		FileName:     fileName,
		DrivePath:    meta.DrivePath,
		PathSegments: pathSegments,
		Summary:      summary,
		WebURL:       meta.WebURL,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		ChunkCount:   len(chunks),
		ContentHash:  hashing.Text(text),
		SourceHash:   hashing.Bytes(pdfBytes),
	}

	chunkPayloads := make([]*domain.Chunk, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkPayloads = append(chunkPayloads, &domain.Chunk{
			DocID:        meta.ID,
			ChunkNo:      i,
			Text:         chunkText,
			TextHash:     hashing.Text(chunkText),
			DrivePath:    meta.DrivePath,
			PathSegments: pathSegments,
			FileName:     fileName,
		})
	}

	if dryRun {
		return &domain.ProcessResult{
			FileID:     meta.ID,
			FileName:   fileName,
			Success:    true,
			ChunkCount: len(chunks),
			Summary:    summary,
			DryRun:     buildDryRunPayload(doc, docVector, chunkPayloads, chunkVectors),
		}
	}

	if err := s.store.ReplaceDocument(ctx, meta.ID, doc, docVector, chunkPayloads, chunkVectors); err != nil {
		s.log.Error("store replace failed", zap.String("file", fileName), zap.Error(err))
		return fail(len(chunks), summary, fmt.Sprintf("storage error: %v", err))
	}

	s.log.Info("document ingested",
		zap.String("file_id", meta.ID),
		zap.String("file", fileName),
		zap.Int("chunks", len(chunks)))

	return &domain.ProcessResult{
		FileID:     meta.ID,
		FileName:   fileName,
		Success:    true,
		ChunkCount: len(chunks),
		Summary:    summary,
	}
}

func buildDryRunPayload(doc *domain.Document, docVector []float32, chunks []*domain.Chunk, chunkVectors [][]float32) *domain.DryRunPayload {
	samples := len(chunks)
	if samples > dryRunChunkSamples {
		samples = dryRunChunkSamples
	}
	preview := make([]domain.ChunkPreview, 0, samples)
	for i := 0; i < samples; i++ {
		preview = append(preview, domain.ChunkPreview{
			Payload:       chunks[i],
			VectorPreview: vectorPreview(chunkVectors[i]),
		})
	}
	return &domain.DryRunPayload{
		DocumentPayload:       doc,
		DocumentVectorPreview: vectorPreview(docVector),
		ChunkPreview:          preview,
		TotalChunks:           len(chunks),
	}
}

func vectorPreview(vector []float32) []float32 {
	if len(vector) <= dryRunVectorPreviewDims {
		return vector
	}
	return vector[:dryRunVectorPreviewDims]
}
