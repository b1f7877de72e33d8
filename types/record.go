package types

import "time"

// RecordMetadata is stored next to every vector.
type RecordMetadata struct {
	FileName    string    `json:"fileName"`
	FileType    string    `json:"fileType"`
	ChunkIndex  int       `json:"chunkIndex"`
	ProcessedAt time.Time `json:"processedAt"`
	PageNumber  int       `json:"pageNumber,omitempty"`
}

type StoredRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"-"`
	Text      string         `json:"text"`
	Metadata  RecordMetadata `json:"metadata"`
}

// ScoredRecord is a query hit. Smaller distance means more similar.
type ScoredRecord struct {
	StoredRecord
	Distance float32 `json:"distance"`
}

// QueryResult holds parallel slices ordered by increasing distance.
type QueryResult struct {
	IDs       []string         `json:"ids"`
	Contexts  []string         `json:"contexts"`
	Metadatas []RecordMetadata `json:"metadatas"`
	Distances []float32        `json:"distances"`
}

func (r *QueryResult) Len() int {
	return len(r.IDs)
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Stats struct {
	TotalDocuments int            `json:"totalDocuments"`
	DocumentTypes  map[string]int `json:"documentTypes"`
	LastUpdated    time.Time      `json:"lastUpdated"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
}
