//go:build integration

package qdrant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/sparse"
	"github.com/corali-systems/docsearchai/internal/testutil"
)

const testDim = 4

func newIntegrationStore(t *testing.T) *Store {
	ctx := context.Background()
	container := testutil.NewQdrantContainer(ctx, t)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	store := NewStore(Config{
		BaseURL:    container.BaseURL(),
		Dimensions: testDim,
	}, sparse.NewVectorizer(nil))

	require.NoError(t, store.EnsureCollections(ctx))
	return store
}

func vec(a, b, c, d float32) []float32 { return []float32{a, b, c, d} }

func seedDocument(t *testing.T, store *Store, fileID, text string) {
	t.Helper()
	doc := &domain.Document{
		FileID:     fileID,
		FileName:   fileID + ".pdf",
		Summary:    "summary of " + fileID,
		ChunkCount: 1,
	}
	chunks := []*domain.Chunk{{
		DocID:   fileID,
		ChunkNo: 0,
		Text:    text,
	}}
	err := store.ReplaceDocument(context.Background(), fileID, doc,
		vec(0.1, 0.2, 0.3, 0.4), chunks, [][]float32{vec(0.1, 0.2, 0.3, 0.4)})
	require.NoError(t, err)
}

func TestIntegration_ReplaceAndQuery(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	seedDocument(t, store, "alpha", "annual budget report for finance")
	seedDocument(t, store, "beta", "meeting notes about vacations")

	sv := sparse.NewVectorizer(nil).Vectorize("budget report")
	hits, err := store.QueryFused(ctx, sv, vec(0.1, 0.2, 0.3, 0.4), 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	docIDs := map[string]bool{}
	for _, hit := range hits {
		docIDs[hit.Payload.DocID] = true
	}
	assert.True(t, docIDs["alpha"])
}

func TestIntegration_ReplaceIsAtomicPerDocument(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	seedDocument(t, store, "alpha", "first version of the text")
	// Re-ingest with different content; old chunks must be gone.
	doc := &domain.Document{FileID: "alpha", FileName: "alpha.pdf", ChunkCount: 2}
	chunks := []*domain.Chunk{
		{DocID: "alpha", ChunkNo: 0, Text: "second version part one"},
		{DocID: "alpha", ChunkNo: 1, Text: "second version part two"},
	}
	vectors := [][]float32{vec(0.4, 0.3, 0.2, 0.1), vec(0.2, 0.2, 0.2, 0.2)}
	require.NoError(t, store.ReplaceDocument(ctx, "alpha", doc, vec(0.5, 0.5, 0.5, 0.5), chunks, vectors))

	hits, err := store.SearchDense(ctx, vec(0.4, 0.3, 0.2, 0.1), 10)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "first version of the text", hit.Payload.Text)
	}

	docs, err := store.FetchDocuments(ctx, []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].ChunkCount)
}

func TestIntegration_FetchDocumentsFiltersUnknownIDs(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	seedDocument(t, store, "alpha", "some text")

	docs, err := store.FetchDocuments(ctx, []string{"alpha", "ghost"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alpha", docs[0].FileID)
}
