package types

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type UploadResponse struct {
	OriginalName string           `json:"originalName"`
	ArchivedPath string           `json:"archivedPath,omitempty"`
	ChunkCount   int              `json:"chunkCount"`
	Metadata     DocumentMetadata `json:"metadata"`
}
