package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document kinds.
const (
	KindWebsite = "website"
	KindText    = "text"
)

type Document struct {
	ID        string
	Source    string // page URL for websites, "text" for pasted content
	Kind      string
	Title     string
	Content   string
	CreatedAt time.Time
}

type Chunk struct {
	DocumentID string
	Seq        int
	Content    string
}

type SourceStats struct {
	Source        string    `json:"source"`
	Kind          string    `json:"kind"`
	ContentLength int       `json:"content_length"`
	ChunksCount   int       `json:"chunks_count"`
	StoredAt      time.Time `json:"stored_at"`
}

type Stats struct {
	TotalDocuments     int           `json:"total_documents"`
	TotalContentLength int           `json:"total_content_length"`
	TotalChunks        int           `json:"total_chunks"`
	Sources            []SourceStats `json:"sources"`
}
