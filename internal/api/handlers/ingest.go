package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/corali-systems/docsearchai/internal/api"
	"github.com/corali-systems/docsearchai/internal/domain"
)

// maxUploadBytes bounds one uploaded PDF held in memory during ingestion.
const maxUploadBytes = 64 << 20

type Ingester interface {
	ProcessDocument(ctx context.Context, meta domain.FileMeta, pdfBytes []byte, dryRun bool) *domain.ProcessResult
}

type IngestHandler struct {
	svc Ingester
}

func NewIngestHandler(svc Ingester) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest handles POST /ingest with a multipart form: a "file" part holding
// the PDF and optional metadata fields. A pipeline failure is reported in
// the result body, not as an HTTP error; only malformed requests get 4xx.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	pdfBytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file: "+err.Error())
		return
	}

	meta := domain.FileMeta{
		ID:           r.FormValue("file_id"),
		Name:         header.Filename,
		DrivePath:    r.FormValue("drive_path"),
		WebURL:       r.FormValue("web_url"),
		LastModified: r.FormValue("last_modified"),
		Size:         int64(len(pdfBytes)),
	}
	if name := r.FormValue("file_name"); name != "" {
		meta.Name = name
	}
	if meta.ID == "" {
		api.HandleError(w, domain.ErrMissingFileID)
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))

	result := h.svc.ProcessDocument(r.Context(), meta, pdfBytes, dryRun)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	api.JSON(w, status, result)
}
