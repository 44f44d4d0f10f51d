package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/gemini"
	"github.com/corali-systems/docsearchai/internal/qdrant"
)

const (
	// MaxTopK bounds how many final results a search may request.
	MaxTopK = 50
	// MaxCandidateWidth bounds the per-index prefetch width.
	MaxCandidateWidth = 200

	snippetMaxChars = 512
)

// SearchResult is one ranked document with its best-matching chunk.
type SearchResult struct {
	FileID    string  `json:"fileId"`
	FileName  string  `json:"fileName"`
	DrivePath string  `json:"drivePath"`
	Summary   string  `json:"summary"`
	WebURL    string  `json:"webUrl"`
	ChunkNo   int     `json:"chunkNo"`
	Snippet   string  `json:"snippet"`
	Score     float32 `json:"score"`
}

// SparseVectorizer produces the lexical query vector; it degrades to the
// empty vector rather than failing.
type SparseVectorizer interface {
	Vectorize(text string) domain.SparseVector
}

// ChunkSearcher is the store's query surface used by the retriever.
type ChunkSearcher interface {
	QueryFused(ctx context.Context, sv domain.SparseVector, dense []float32, width int) ([]qdrant.ChunkHit, error)
	SearchDense(ctx context.Context, dense []float32, limit int) ([]qdrant.ChunkHit, error)
	FetchDocuments(ctx context.Context, fileIDs []string) ([]*domain.Document, error)
}

// SearchService serves hybrid dense+sparse retrieval over the chunk index.
type SearchService struct {
	embedder EmbeddingClient
	sparse   SparseVectorizer
	store    ChunkSearcher
	log      *zap.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(embedder EmbeddingClient, sparse SparseVectorizer, store ChunkSearcher, log *zap.Logger) *SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{
		embedder: embedder,
		sparse:   sparse,
		store:    store,
		log:      log,
	}
}

// Search runs one hybrid query and returns at most topK documents ranked
// by score, each represented by its highest-ranked chunk. A failure to
// compute the query vectors aborts the search; a failure of the fused
// store query degrades to a dense-only query over the same candidate
// width, which is logged, never silent.
func (s *SearchService) Search(ctx context.Context, query string, topK, candidateWidth int) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK < 1 || topK > MaxTopK {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("top_k must be between 1 and %d", MaxTopK))
	}
	if candidateWidth < 1 || candidateWidth > MaxCandidateWidth {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("chunk_candidates must be between 1 and %d", MaxCandidateWidth))
	}

	// The sparse vectorizer degrades to the empty vector instead of
	// failing, so both query vectors are always attempted.
	sparseVector := s.sparse.Vectorize(query)

	denseVectors, err := s.embedder.EmbedTexts(ctx, []string{query}, gemini.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(denseVectors) == 0 || len(denseVectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}
	dense := denseVectors[0]

	hits, err := s.store.QueryFused(ctx, sparseVector, dense, candidateWidth)
	if err != nil {
		// Resilience fallback, not a silent quality degradation.
		s.log.Warn("hybrid query failed, falling back to dense-only search", zap.Error(err))
		hits, err = s.store.SearchDense(ctx, dense, candidateWidth)
		if err != nil {
			return nil, fmt.Errorf("dense fallback search failed: %w", err)
		}
	}
	if len(hits) == 0 {
		return []*SearchResult{}, nil
	}

	return s.rankHits(ctx, hits, topK)
}

// rankHits is the shared tail of both the fused and the fallback path:
// dedup to the first (highest-fused-rank) chunk per document, join
// document metadata in one batched fetch, sort by score, truncate.
func (s *SearchService) rankHits(ctx context.Context, hits []qdrant.ChunkHit, topK int) ([]*SearchResult, error) {
	best := make(map[string]qdrant.ChunkHit, len(hits))
	order := make([]string, 0, len(hits))
	for _, hit := range hits {
		docID := hit.Payload.DocID
		if docID == "" {
			continue
		}
		if _, seen := best[docID]; seen {
			continue
		}
		best[docID] = hit
		order = append(order, docID)
	}
	if len(order) == 0 {
		return []*SearchResult{}, nil
	}

	docs, err := s.store.FetchDocuments(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document metadata: %w", err)
	}

	results := make([]*SearchResult, 0, len(docs))
	for _, doc := range docs {
		hit, ok := best[doc.FileID]
		if !ok {
			// Chunks reference real documents; anything else is dropped.
			continue
		}
		results = append(results, &SearchResult{
			FileID:    doc.FileID,
			FileName:  doc.FileName,
			DrivePath: doc.DrivePath,
			Summary:   doc.Summary,
			WebURL:    doc.WebURL,
			ChunkNo:   hit.Payload.ChunkNo,
			Snippet:   makeSnippet(hit.Payload.Text),
			Score:     hit.Score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func makeSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxChars {
		return text
	}
	return string(runes[:snippetMaxChars]) + "..."
}
