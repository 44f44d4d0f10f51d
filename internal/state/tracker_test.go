package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestClaim_NewFile(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	assert.True(t, ok)

	current, found, err := tracker.Get(ctx, "f1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateDownloading, current)
}

func TestClaim_BusyFileIsRejected(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.Claim(ctx, "f1", StateProcessing, "etag-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The losing claim must not have overwritten the state.
	current, _, err := tracker.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, current)
}

func TestClaim_TerminalFileIsReclaimable(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	for _, terminal := range []State{StateCompleted, StateFailed} {
		require.NoError(t, tracker.Set(ctx, "f1", terminal, ""))
		ok, err := tracker.Claim(ctx, "f1", StateEnqueued, "")
		require.NoError(t, err)
		assert.True(t, ok, "state %s should be reclaimable", terminal)
		require.NoError(t, tracker.Set(ctx, "f1", StateCompleted, ""))
	}
}

func TestClaim_CompletedUnchangedFileIsSkipped(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tracker.Set(ctx, "f1", StateCompleted, ""))

	// Same signature: the work is already done.
	ok, err = tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	assert.False(t, ok)

	current, _, err := tracker.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, current)
}

func TestClaim_CompletedChangedFileIsReclaimable(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tracker.Set(ctx, "f1", StateCompleted, ""))

	ok, err = tracker.Claim(ctx, "f1", StateDownloading, "etag-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaim_FailedFileRetriedDespiteUnchangedSignature(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tracker.Set(ctx, "f1", StateFailed, "ocr error"))

	ok, err = tracker.Claim(ctx, "f1", StateDownloading, "etag-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaim_TerminalTargetRejected(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.Claim(context.Background(), "f1", StateCompleted, "etag-1")
	assert.Error(t, err)
}

func TestGet_Untracked(t *testing.T) {
	tracker := newTestTracker(t)

	_, found, err := tracker.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPruneTerminal(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	base := time.Now()
	tracker.now = func() time.Time { return base.Add(-25 * time.Hour) }
	require.NoError(t, tracker.Set(ctx, "old-done", StateCompleted, ""))
	require.NoError(t, tracker.Set(ctx, "old-failed", StateFailed, "ocr error"))
	require.NoError(t, tracker.Set(ctx, "old-active", StateProcessing, ""))

	tracker.now = func() time.Time { return base }
	require.NoError(t, tracker.Set(ctx, "fresh-done", StateCompleted, ""))

	pruned, err := tracker.PruneTerminal(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	// Stale but active rows survive pruning.
	_, found, err := tracker.Get(ctx, "old-active")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = tracker.Get(ctx, "fresh-done")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = tracker.Get(ctx, "old-done")
	require.NoError(t, err)
	assert.False(t, found)
}
