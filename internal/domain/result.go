package domain

// ProcessResult is the outcome of one ingestion attempt for one document.
// Exactly one of Success or Error holds.
type ProcessResult struct {
	FileID     string         `json:"file_id"`
	FileName   string         `json:"file_name"`
	Success    bool           `json:"success"`
	ChunkCount int            `json:"chunk_count"`
	Summary    string         `json:"summary"`
	DryRun     *DryRunPayload `json:"dry_run_payload,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// DryRunPayload previews what an ingestion would have written to the store.
type DryRunPayload struct {
	DocumentPayload       *Document      `json:"document_payload"`
	DocumentVectorPreview []float32      `json:"document_vector_preview"`
	ChunkPreview          []ChunkPreview `json:"chunk_preview"`
	TotalChunks           int            `json:"total_chunks"`
}

// ChunkPreview is one sample chunk in a dry-run payload.
type ChunkPreview struct {
	Payload       *Chunk    `json:"payload"`
	VectorPreview []float32 `json:"vector_preview"`
}
