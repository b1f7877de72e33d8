package types

type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"topK,omitempty"`
}

type SummarizeRequest struct {
	Content string `json:"content" binding:"required"`
}
