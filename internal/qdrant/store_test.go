package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corali-systems/docsearchai/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newRecordingServer(t *testing.T, respond func(r *http.Request) string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		if respond != nil {
			_, _ = w.Write([]byte(respond(r)))
			return
		}
		_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

type staticVectorizer struct{}

func (staticVectorizer) Vectorize(text string) domain.SparseVector {
	if text == "" {
		return domain.EmptySparseVector()
	}
	return domain.SparseVector{Indices: []uint32{7}, Values: []float32{0.5}}
}

func TestEnsureCollections(t *testing.T) {
	server, requests := newRecordingServer(t, nil)
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	require.NoError(t, store.EnsureCollections(context.Background()))

	require.Len(t, *requests, 2)
	assert.Equal(t, "/collections/"+DocCollection, (*requests)[0].path)
	assert.Equal(t, "/collections/"+ChunkCollection, (*requests)[1].path)

	chunkVectors := (*requests)[1].body["vectors"].(map[string]any)
	assert.Contains(t, chunkVectors, ChunkVectorName)
	assert.Contains(t, (*requests)[1].body["sparse_vectors"], BM25VectorName)
}

func TestReplaceDocument_DeletesThenUpserts(t *testing.T) {
	server, requests := newRecordingServer(t, nil)
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, staticVectorizer{})

	doc := &domain.Document{FileID: "file-1", FileName: "a.pdf", ChunkCount: 2}
	chunks := []*domain.Chunk{
		{DocID: "file-1", ChunkNo: 0, Text: "first"},
		{DocID: "file-1", ChunkNo: 1, Text: "second"},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}

	err := store.ReplaceDocument(context.Background(), "file-1", doc, []float32{0, 0, 1, 0}, chunks, vectors)
	require.NoError(t, err)

	require.Len(t, *requests, 4)

	// Stale records are removed from both collections first.
	assert.Equal(t, "/collections/"+DocCollection+"/points/delete", (*requests)[0].path)
	assert.Equal(t, "/collections/"+ChunkCollection+"/points/delete", (*requests)[1].path)
	assert.Equal(t, "wait=true", (*requests)[0].query)

	// Upserts are wait=true so the replace is visible on return.
	assert.Equal(t, "/collections/"+DocCollection+"/points", (*requests)[2].path)
	assert.Equal(t, "/collections/"+ChunkCollection+"/points", (*requests)[3].path)
	assert.Equal(t, "wait=true", (*requests)[3].query)

	chunkPoints := (*requests)[3].body["points"].([]any)
	require.Len(t, chunkPoints, 2)
	vector := chunkPoints[0].(map[string]any)["vector"].(map[string]any)
	assert.Contains(t, vector, ChunkVectorName)
	assert.Contains(t, vector, BM25VectorName)
}

func TestReplaceDocument_VectorCountMismatch(t *testing.T) {
	server, _ := newRecordingServer(t, nil)
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	chunks := []*domain.Chunk{{DocID: "f", ChunkNo: 0, Text: "x"}}
	err := store.ReplaceDocument(context.Background(), "f", &domain.Document{}, nil, chunks, nil)
	assert.Error(t, err)
}

func TestQueryFused_RequestShape(t *testing.T) {
	server, requests := newRecordingServer(t, func(*http.Request) string {
		return `{"result":{"points":[{"id":"p1","score":0.9,"payload":{"docId":"d1","chunkNo":3,"text":"hit"}}]}}`
	})
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	sv := domain.SparseVector{Indices: []uint32{1, 2}, Values: []float32{0.3, 0.7}}
	hits, err := store.QueryFused(context.Background(), sv, []float32{1, 0, 0, 0}, 50)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].Payload.DocID)
	assert.Equal(t, 3, hits[0].Payload.ChunkNo)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)

	body := (*requests)[0].body
	assert.Equal(t, "/collections/"+ChunkCollection+"/points/query", (*requests)[0].path)
	prefetch := body["prefetch"].([]any)
	require.Len(t, prefetch, 2)
	assert.Equal(t, BM25VectorName, prefetch[0].(map[string]any)["using"])
	assert.Equal(t, ChunkVectorName, prefetch[1].(map[string]any)["using"])
	assert.Equal(t, "rrf", body["query"].(map[string]any)["fusion"])
	assert.Equal(t, float64(50), body["limit"])
}

func TestSearchDense_RequestShape(t *testing.T) {
	server, requests := newRecordingServer(t, func(*http.Request) string {
		return `{"result":{"points":[]}}`
	})
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	hits, err := store.SearchDense(context.Background(), []float32{1, 0, 0, 0}, 20)
	require.NoError(t, err)
	assert.Empty(t, hits)

	body := (*requests)[0].body
	assert.Equal(t, ChunkVectorName, body["using"])
	assert.Equal(t, float64(20), body["limit"])
	_, hasPrefetch := body["prefetch"]
	assert.False(t, hasPrefetch)
}

func TestFetchDocuments(t *testing.T) {
	server, requests := newRecordingServer(t, func(*http.Request) string {
		return `{"result":{"points":[{"payload":{"fileId":"a","fileName":"a.pdf","summary":"s"}}]}}`
	})
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	docs, err := store.FetchDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].FileID)

	body := (*requests)[0].body
	should := body["filter"].(map[string]any)["should"].([]any)
	assert.Len(t, should, 2)
	assert.Equal(t, float64(2), body["limit"])
}

func TestFetchDocuments_NoIDs(t *testing.T) {
	store := NewStore(Config{BaseURL: "http://unused", Dimensions: 4}, nil)
	docs, err := store.FetchDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("file-1:0"), PointID("file-1:0"))
	assert.NotEqual(t, PointID("file-1:0"), PointID("file-1:1"))
}

func TestStore_ErrorStatusPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)
	store := NewStore(Config{BaseURL: server.URL, Dimensions: 4}, nil)

	err := store.EnsureCollections(context.Background())
	assert.Error(t, err)
}
