package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/state"
	"github.com/corali-systems/docsearchai/internal/storage"
	"github.com/corali-systems/docsearchai/internal/telemetry"
)

// StateRetention is how long completed and failed files stay tracked.
// Pruning a completed row forgets its content signature, so every file
// gets re-ingested at most once per retention window.
const StateRetention = 24 * time.Hour

// SourceBucket lists and downloads pending source documents.
type SourceBucket interface {
	ListPDFs(ctx context.Context) ([]domain.FileMeta, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error)
}

// StateTracker guards each file against concurrent ingestion and
// remembers the content signature of finished files.
type StateTracker interface {
	Claim(ctx context.Context, fileID string, to state.State, signature string) (bool, error)
	Set(ctx context.Context, fileID string, to state.State, detail string) error
	PruneTerminal(ctx context.Context, retention time.Duration) (int64, error)
}

// DocumentProcessor runs the full ingestion pipeline for one document.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, meta domain.FileMeta, pdfBytes []byte, dryRun bool) *domain.ProcessResult
}

// IngestWorker sweeps the source bucket and ingests every PDF that is
// not already mid-ingestion. One sweep is one ProcessJobs call; the
// generic Worker provides the polling loop around it.
type IngestWorker struct {
	bucket  SourceBucket
	tracker StateTracker
	ingest  DocumentProcessor
	log     *zap.Logger
}

// NewIngestWorker creates a new IngestWorker instance
func NewIngestWorker(bucket SourceBucket, tracker StateTracker, ingest DocumentProcessor, log *zap.Logger) *IngestWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestWorker{
		bucket:  bucket,
		tracker: tracker,
		ingest:  ingest,
		log:     log,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	if _, err := w.tracker.PruneTerminal(ctx, StateRetention); err != nil {
		w.log.Warn("state pruning failed", zap.Error(err))
	}

	files, err := w.bucket.ListPDFs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source bucket: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	for _, meta := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.processFile(ctx, meta); err != nil {
			w.log.Error("file ingestion failed",
				zap.String("file_id", meta.ID), zap.Error(err))
		}
	}
	return nil
}

func (w *IngestWorker) processFile(ctx context.Context, meta domain.FileMeta) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.file", telemetry.SpanAttributes{
		FileID:    meta.ID,
		Operation: "ingest",
	})
	defer span.End()

	claimed, err := w.tracker.Claim(ctx, meta.ID, state.StateDownloading, w.sourceSignature(ctx, meta))
	if err != nil {
		return fmt.Errorf("claim failed: %w", err)
	}
	if !claimed {
		// Either another sweep owns this file, or it already completed
		// with the same content signature.
		return nil
	}

	pdfBytes, err := w.bucket.GetObject(ctx, meta.ID)
	if err != nil {
		span.SetError(err)
		w.setState(ctx, meta.ID, state.StateFailed, err.Error())
		return fmt.Errorf("download failed: %w", err)
	}

	w.setState(ctx, meta.ID, state.StateProcessing, "")
	result := w.ingest.ProcessDocument(ctx, meta, pdfBytes, false)
	if !result.Success {
		span.SetError(fmt.Errorf("pipeline failed: %s", result.Error))
		w.setState(ctx, meta.ID, state.StateFailed, result.Error)
		return fmt.Errorf("pipeline failed: %s", result.Error)
	}

	w.setState(ctx, meta.ID, state.StateCompleted, "")
	w.log.Info("file ingested",
		zap.String("file_id", meta.ID),
		zap.Int("chunks", result.ChunkCount))
	return nil
}

// sourceSignature identifies the current content of the object so that
// an unchanged completed file is not re-ingested. The ETag is preferred;
// when the head request fails we fall back to the listing's timestamp,
// which at worst re-ingests a file whose metadata was touched.
func (w *IngestWorker) sourceSignature(ctx context.Context, meta domain.FileMeta) string {
	head, err := w.bucket.HeadObject(ctx, meta.ID)
	if err != nil || head.ETag == "" {
		w.log.Debug("head request failed, using last-modified as signature",
			zap.String("file_id", meta.ID), zap.Error(err))
		return meta.LastModified
	}
	return head.ETag
}

func (w *IngestWorker) setState(ctx context.Context, fileID string, to state.State, detail string) {
	if err := w.tracker.Set(ctx, fileID, to, detail); err != nil {
		w.log.Warn("state transition failed",
			zap.String("file_id", fileID),
			zap.String("state", string(to)),
			zap.Error(err))
	}
}
