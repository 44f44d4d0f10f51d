package domain

import "strings"

// FileMeta describes a source file as reported by the drive that owns it.
// ID is the stable external identifier and is required for ingestion.
type FileMeta struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DrivePath    string `json:"drivePath"`
	WebURL       string `json:"webUrl"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModifiedDateTime"`
}

// Document is the stored metadata record for one ingested file. A document
// and all of its chunks are replaced together on re-ingestion, never merged.
type Document struct {
	FileID       string   `json:"fileId"`
	FileName     string   `json:"fileName"`
	DrivePath    string   `json:"drivePath"`
	PathSegments []string `json:"pathSegments"`
	Summary      string   `json:"summary"`
	WebURL       string   `json:"webUrl"`
	Size         int64    `json:"size"`
	LastModified string   `json:"lastModified"`
	ChunkCount   int      `json:"chunkCount"`
	ContentHash  string   `json:"contentHash"`
	SourceHash   string   `json:"sourceSha256"`
}

// Chunk is one overlapping window of a document's extracted text. Drive
// metadata is denormalized onto each chunk so retrieval needs no join.
type Chunk struct {
	DocID        string   `json:"docId"`
	ChunkNo      int      `json:"chunkNo"`
	Text         string   `json:"text"`
	TextHash     string   `json:"textHash"`
	DrivePath    string   `json:"drivePath"`
	PathSegments []string `json:"pathSegments"`
	FileName     string   `json:"fileName"`
}

// SplitDrivePath derives ordered path segments from a drive path,
// dropping empty components.
func SplitDrivePath(drivePath string) []string {
	segments := make([]string, 0, 4)
	for _, segment := range strings.Split(drivePath, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}
