package models

// Chunk is one embedded word window of a document page.
type Chunk struct {
	ID         int64     `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Page       int       `json:"page" db:"page"`
	Text       string    `json:"text" db:"content"`
	Embedding  []float32 `json:"embedding" db:"embedding"`
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
