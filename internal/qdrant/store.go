// Package qdrant is a minimal REST client for the vector store. It owns
// the collection schema (named dense + sparse vectors over the chunk
// index) and the atomic per-document replace used by ingestion.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/domain"
)

const (
	DocCollection   = "documents_v2"
	ChunkCollection = "chunks_v2"

	DocVectorName   = "v_doc"
	ChunkVectorName = "v_chunk"
	BM25VectorName  = "v_bm25"
)

// pointNamespace seeds deterministic point IDs so re-ingesting a file
// overwrites its previous points instead of accumulating duplicates.
var pointNamespace = uuid.MustParse("7a3f1d2a-9c41-4e8b-b4a6-5d20c95d8f10")

// ChunkVectorizer supplies the lexical vector written alongside each
// chunk so the sparse index can serve fused queries.
type ChunkVectorizer interface {
	Vectorize(text string) domain.SparseVector
}

// ChunkHit is one scored chunk returned by a store query.
type ChunkHit struct {
	ID      string
	Score   float32
	Payload domain.Chunk
}

// Config holds store connection settings.
type Config struct {
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Store talks to Qdrant over its REST API.
type Store struct {
	baseURL    string
	dim        int
	client     *http.Client
	vectorizer ChunkVectorizer
	log        *zap.Logger
}

// NewStore creates a store client. The vectorizer may be nil, in which
// case chunks are written without sparse vectors.
func NewStore(cfg Config, vectorizer ChunkVectorizer) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		baseURL:    cfg.BaseURL,
		dim:        cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		vectorizer: vectorizer,
		log:        log,
	}
}

// EnsureCollections creates the document and chunk collections if they do
// not exist. Qdrant answers 200 for an existing collection with the same
// schema.
func (s *Store) EnsureCollections(ctx context.Context) error {
	docBody := map[string]any{
		"vectors": map[string]any{
			DocVectorName: map[string]any{"size": s.dim, "distance": "Cosine"},
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.baseURL, DocCollection), docBody, nil); err != nil {
		return fmt.Errorf("failed to ensure document collection: %w", err)
	}

	chunkBody := map[string]any{
		"vectors": map[string]any{
			ChunkVectorName: map[string]any{"size": s.dim, "distance": "Cosine"},
		},
		"sparse_vectors": map[string]any{
			BM25VectorName: map[string]any{},
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.baseURL, ChunkCollection), chunkBody, nil); err != nil {
		return fmt.Errorf("failed to ensure chunk collection: %w", err)
	}
	return nil
}

// ReplaceDocument deletes any stored records for fileID in both
// collections and inserts the new document and chunk points. Writes use
// wait=true so the replace is visible once the call returns.
func (s *Store) ReplaceDocument(
	ctx context.Context,
	fileID string,
	doc *domain.Document,
	docVector []float32,
	chunks []*domain.Chunk,
	chunkVectors [][]float32,
) error {
	if len(chunks) != len(chunkVectors) {
		return fmt.Errorf("chunk payloads and vectors length mismatch: %d vs %d", len(chunks), len(chunkVectors))
	}

	if err := s.deleteByField(ctx, DocCollection, "fileId", fileID); err != nil {
		return fmt.Errorf("failed to delete stale document: %w", err)
	}
	if err := s.deleteByField(ctx, ChunkCollection, "docId", fileID); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	docPoint := map[string]any{
		"id":      PointID(fileID),
		"vector":  map[string]any{DocVectorName: docVector},
		"payload": doc,
	}
	if err := s.upsert(ctx, DocCollection, []map[string]any{docPoint}); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	chunkPoints := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		vector := map[string]any{ChunkVectorName: chunkVectors[i]}
		if s.vectorizer != nil {
			if sv := s.vectorizer.Vectorize(chunk.Text); !sv.IsEmpty() {
				vector[BM25VectorName] = sv
			}
		}
		chunkPoints = append(chunkPoints, map[string]any{
			"id":      PointID(fmt.Sprintf("%s:%d", fileID, chunk.ChunkNo)),
			"vector":  vector,
			"payload": chunk,
		})
	}
	if err := s.upsert(ctx, ChunkCollection, chunkPoints); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	return nil
}

// QueryFused runs one hybrid query over the chunk index: width candidates
// from the sparse index, width from the dense index, fused with
// Reciprocal Rank Fusion into at most width results.
func (s *Store) QueryFused(ctx context.Context, sv domain.SparseVector, dense []float32, width int) ([]ChunkHit, error) {
	body := map[string]any{
		"prefetch": []map[string]any{
			{
				"query": map[string]any{"indices": sv.Indices, "values": sv.Values},
				"using": BM25VectorName,
				"limit": width,
			},
			{
				"query": dense,
				"using": ChunkVectorName,
				"limit": width,
			},
		},
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        width,
		"with_payload": true,
	}
	return s.queryPoints(ctx, body)
}

// SearchDense runs a dense-only nearest-neighbor query over the chunk
// index. Used as the resilience fallback when the fused path fails.
func (s *Store) SearchDense(ctx context.Context, dense []float32, limit int) ([]ChunkHit, error) {
	body := map[string]any{
		"query":        dense,
		"using":        ChunkVectorName,
		"limit":        limit,
		"with_payload": true,
	}
	return s.queryPoints(ctx, body)
}

// FetchDocuments retrieves the metadata records for exactly the given
// file IDs in one scroll call.
func (s *Store) FetchDocuments(ctx context.Context, fileIDs []string) ([]*domain.Document, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	should := make([]map[string]any, 0, len(fileIDs))
	for _, id := range fileIDs {
		should = append(should, map[string]any{
			"key":   "fileId",
			"match": map[string]any{"value": id},
		})
	}
	body := map[string]any{
		"filter":       map[string]any{"should": should},
		"limit":        len(fileIDs),
		"with_payload": true,
		"with_vector":  false,
	}

	var resp struct {
		Result struct {
			Points []struct {
				Payload domain.Document `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, DocCollection)
	if err := s.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	docs := make([]*domain.Document, 0, len(resp.Result.Points))
	for i := range resp.Result.Points {
		doc := resp.Result.Points[i].Payload
		docs = append(docs, &doc)
	}
	return docs, nil
}

// PointID derives the stable point UUID for a storage key.
func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (s *Store) queryPoints(ctx context.Context, body map[string]any) ([]ChunkHit, error) {
	var resp struct {
		Result struct {
			Points []struct {
				ID      any          `json:"id"`
				Score   float32      `json:"score"`
				Payload domain.Chunk `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", s.baseURL, ChunkCollection)
	if err := s.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	hits := make([]ChunkHit, 0, len(resp.Result.Points))
	for _, point := range resp.Result.Points {
		hits = append(hits, ChunkHit{
			ID:      fmt.Sprint(point.ID),
			Score:   point.Score,
			Payload: point.Payload,
		})
	}
	return hits, nil
}

func (s *Store) deleteByField(ctx context.Context, collection, field, value string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": field, "match": map[string]any{"value": value}},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, collection)
	return s.postJSON(ctx, url, body, nil)
}

func (s *Store) upsert(ctx context.Context, collection string, points []map[string]any) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, collection)
	return s.putJSON(ctx, url, body, nil)
}

func (s *Store) putJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
