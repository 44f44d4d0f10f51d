package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/api"
	"github.com/corali-systems/docsearchai/internal/api/handlers"
	"github.com/corali-systems/docsearchai/internal/api/middleware"
)

type RouterConfig struct {
	SearchHandler *handlers.SearchHandler
	IngestHandler *handlers.IngestHandler
	Logger        *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 64 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/search", cfg.SearchHandler.Search)
	r.Post("/ingest", cfg.IngestHandler.Ingest)

	return r
}
