package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/corali-systems/docsearchai/internal/api"
	"github.com/corali-systems/docsearchai/internal/domain"
	"github.com/corali-systems/docsearchai/internal/service"
)

const (
	defaultTopK           = 5
	defaultCandidateWidth = 50
)

type Searcher interface {
	Search(ctx context.Context, query string, topK, candidateWidth int) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc Searcher
}

func NewSearchHandler(svc Searcher) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchResponse struct {
	Results []*service.SearchResult `json:"results"`
}

// Search handles GET /search?query=...&top_k=...&chunk_candidates=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	topK, err := queryInt(r, "top_k", defaultTopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	candidateWidth, err := queryInt(r, "chunk_candidates", defaultCandidateWidth)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results, err := h.svc.Search(r.Context(), query, topK, candidateWidth)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []*service.SearchResult{}
	}

	api.JSON(w, http.StatusOK, SearchResponse{Results: results})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, name+" must be an integer")
	}
	return value, nil
}
