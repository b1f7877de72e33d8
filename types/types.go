package types

import "time"

// IngestResult describes a successfully ingested file.
type IngestResult struct {
	Success    bool             `json:"success"`
	ChunkCount int              `json:"chunkCount"`
	Document   Document         `json:"document"`
	Metadata   DocumentMetadata `json:"metadata"`
}

// Source is a file that contributed a context to an answer.
type Source struct {
	FileName    string    `json:"fileName"`
	FileType    string    `json:"fileType"`
	ProcessedAt time.Time `json:"processedAt"`
}

type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Degraded is set when the answer is the fixed fallback message.
	Degraded bool `json:"degraded,omitempty"`
}

type SummaryResult struct {
	Summary string `json:"summary"`
}

type ClearResult struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}
