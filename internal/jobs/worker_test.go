package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/state"
	"github.com/corali-systems/docsearchai/internal/storage"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSourceBucket is a mock implementation of SourceBucket
type MockSourceBucket struct {
	mock.Mock
}

func (m *MockSourceBucket) ListPDFs(ctx context.Context) ([]domain.FileMeta, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FileMeta), args.Error(1)
}

func (m *MockSourceBucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSourceBucket) HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ObjectMetadata), args.Error(1)
}

// MockStateTracker is a mock implementation of StateTracker
type MockStateTracker struct {
	mock.Mock
}

func (m *MockStateTracker) Claim(ctx context.Context, fileID string, to state.State, signature string) (bool, error) {
	args := m.Called(ctx, fileID, to, signature)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateTracker) Set(ctx context.Context, fileID string, to state.State, detail string) error {
	args := m.Called(ctx, fileID, to, detail)
	return args.Error(0)
}

func (m *MockStateTracker) PruneTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

// MockDocumentProcessor is a mock implementation of DocumentProcessor
type MockDocumentProcessor struct {
	mock.Mock
}

func (m *MockDocumentProcessor) ProcessDocument(ctx context.Context, meta domain.FileMeta, pdfBytes []byte, dryRun bool) *domain.ProcessResult {
	args := m.Called(ctx, meta, pdfBytes, dryRun)
	return args.Get(0).(*domain.ProcessResult)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func newIngestWorkerFixture() (*MockSourceBucket, *MockStateTracker, *MockDocumentProcessor, *IngestWorker) {
	bucket := new(MockSourceBucket)
	tracker := new(MockStateTracker)
	processor := new(MockDocumentProcessor)
	worker := NewIngestWorker(bucket, tracker, processor, nil)
	tracker.On("PruneTerminal", mock.Anything, StateRetention).Return(int64(0), nil)
	bucket.On("HeadObject", mock.Anything, mock.Anything).
		Return(&storage.ObjectMetadata{ETag: "etag-1"}, nil).Maybe()
	return bucket, tracker, processor, worker
}

func TestIngestWorker_EmptyBucket(t *testing.T) {
	bucket, _, processor, worker := newIngestWorkerFixture()
	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{}, nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	processor.AssertNotCalled(t, "ProcessDocument")
}

func TestIngestWorker_ListFailure(t *testing.T) {
	bucket, _, _, worker := newIngestWorkerFixture()
	bucket.On("ListPDFs", mock.Anything).Return(nil, errors.New("bucket unreachable"))

	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
}

func TestIngestWorker_SuccessfulSweep(t *testing.T) {
	bucket, tracker, processor, worker := newIngestWorkerFixture()
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf"}
	pdf := []byte("pdf bytes")

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	tracker.On("Claim", mock.Anything, "inbox/a.pdf", state.StateDownloading, "etag-1").Return(true, nil)
	bucket.On("GetObject", mock.Anything, "inbox/a.pdf").Return(pdf, nil)
	tracker.On("Set", mock.Anything, "inbox/a.pdf", state.StateProcessing, "").Return(nil)
	processor.On("ProcessDocument", mock.Anything, meta, pdf, false).
		Return(&domain.ProcessResult{FileID: meta.ID, Success: true, ChunkCount: 3})
	tracker.On("Set", mock.Anything, "inbox/a.pdf", state.StateCompleted, "").Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	tracker.AssertExpectations(t)
	processor.AssertExpectations(t)
}

func TestIngestWorker_BusyFileSkipped(t *testing.T) {
	bucket, tracker, processor, worker := newIngestWorkerFixture()
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf"}

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	tracker.On("Claim", mock.Anything, "inbox/a.pdf", state.StateDownloading, "etag-1").Return(false, nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	bucket.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
	processor.AssertNotCalled(t, "ProcessDocument")
}

func TestIngestWorker_PipelineFailureMarksFailed(t *testing.T) {
	bucket, tracker, processor, worker := newIngestWorkerFixture()
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf"}
	pdf := []byte("pdf")

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	tracker.On("Claim", mock.Anything, "inbox/a.pdf", state.StateDownloading, "etag-1").Return(true, nil)
	bucket.On("GetObject", mock.Anything, "inbox/a.pdf").Return(pdf, nil)
	tracker.On("Set", mock.Anything, "inbox/a.pdf", state.StateProcessing, "").Return(nil)
	processor.On("ProcessDocument", mock.Anything, meta, pdf, false).
		Return(&domain.ProcessResult{FileID: meta.ID, Success: false, Error: "empty text after OCR"})
	tracker.On("Set", mock.Anything, "inbox/a.pdf", state.StateFailed, "empty text after OCR").Return(nil)

	// One bad file never fails the sweep.
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	tracker.AssertExpectations(t)
}

// newSweepFixture backs the worker with a real state tracker so that
// repeated sweeps exercise the persisted signature check.
func newSweepFixture(t *testing.T) (*MockSourceBucket, *MockDocumentProcessor, *IngestWorker) {
	t.Helper()
	tracker, err := state.NewTracker(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	bucket := new(MockSourceBucket)
	processor := new(MockDocumentProcessor)
	return bucket, processor, NewIngestWorker(bucket, tracker, processor, nil)
}

func TestIngestWorker_UnchangedCompletedFileNotReingested(t *testing.T) {
	bucket, processor, worker := newSweepFixture(t)
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf", LastModified: "2026-08-30T10:00:00Z"}
	pdf := []byte("pdf bytes")

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	bucket.On("HeadObject", mock.Anything, "inbox/a.pdf").
		Return(&storage.ObjectMetadata{ETag: `"v1"`}, nil)
	bucket.On("GetObject", mock.Anything, "inbox/a.pdf").Return(pdf, nil)
	processor.On("ProcessDocument", mock.Anything, meta, pdf, false).
		Return(&domain.ProcessResult{FileID: meta.ID, Success: true, ChunkCount: 2}).Once()

	require.NoError(t, worker.ProcessJobs(context.Background()))
	require.NoError(t, worker.ProcessJobs(context.Background()))

	// The second sweep sees the same ETag on a completed file and skips it.
	processor.AssertNumberOfCalls(t, "ProcessDocument", 1)
}

func TestIngestWorker_ChangedCompletedFileReingested(t *testing.T) {
	bucket, processor, worker := newSweepFixture(t)
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf", LastModified: "2026-08-30T10:00:00Z"}
	pdf := []byte("pdf bytes")

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	bucket.On("HeadObject", mock.Anything, "inbox/a.pdf").
		Return(&storage.ObjectMetadata{ETag: `"v1"`}, nil).Once()
	bucket.On("HeadObject", mock.Anything, "inbox/a.pdf").
		Return(&storage.ObjectMetadata{ETag: `"v2"`}, nil).Once()
	bucket.On("GetObject", mock.Anything, "inbox/a.pdf").Return(pdf, nil)
	processor.On("ProcessDocument", mock.Anything, meta, pdf, false).
		Return(&domain.ProcessResult{FileID: meta.ID, Success: true, ChunkCount: 2}).Twice()

	require.NoError(t, worker.ProcessJobs(context.Background()))
	require.NoError(t, worker.ProcessJobs(context.Background()))

	processor.AssertNumberOfCalls(t, "ProcessDocument", 2)
}

func TestIngestWorker_DownloadFailureMarksFailed(t *testing.T) {
	bucket, tracker, processor, worker := newIngestWorkerFixture()
	meta := domain.FileMeta{ID: "inbox/a.pdf", Name: "a.pdf"}

	bucket.On("ListPDFs", mock.Anything).Return([]domain.FileMeta{meta}, nil)
	tracker.On("Claim", mock.Anything, "inbox/a.pdf", state.StateDownloading, "etag-1").Return(true, nil)
	bucket.On("GetObject", mock.Anything, "inbox/a.pdf").Return(nil, errors.New("timeout"))
	tracker.On("Set", mock.Anything, "inbox/a.pdf", state.StateFailed, "timeout").Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	processor.AssertNotCalled(t, "ProcessDocument")
	tracker.AssertExpectations(t)
}
