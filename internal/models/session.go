package models

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is a chat bound permanently to one document.
type Session struct {
	ID         string    `json:"-"`
	DocumentID string    `json:"document_id"`
	Messages   []Message `json:"messages"`
}
