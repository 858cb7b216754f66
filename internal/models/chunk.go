package models

import (
	"context"
	"time"
)

// Chunk is a window of document text plus the provenance needed to cite it.
type Chunk struct {
	Text      string   `json:"text"`
	PaperName string   `json:"paper_name"`
	Authors   []string `json:"authors"`
	Page      string   `json:"page"`
	SourceRef string   `json:"source"`
}

// RetrievedMatch is a search hit. Certainty is normalized to [0,1].
type RetrievedMatch struct {
	Chunk
	Certainty float64 `json:"certainty"`
}

// DeleteResult reports the outcome of a delete-by-title. A result with
// Success false is not an error: nothing may have matched.
type DeleteResult struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deleted_count"`
	Message      string `json:"message"`
}

// VectorIndex is the shared similarity store for both ingestion and queries.
type VectorIndex interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, chunks []Chunk) (int, error)
	Search(ctx context.Context, queryVector []float32, limit int) ([]RetrievedMatch, error)
	DeleteByTitle(ctx context.Context, title string) (DeleteResult, error)
}

type Role string

const (
	RoleHuman   Role = "HUMAN"
	RoleMachine Role = "MACHINE"
)

// ConversationTurn is one persisted chat message, oldest first in a history.
type ConversationTurn struct {
	Role    Role      `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	SentAt  time.Time `json:"sent_at" yaml:"sent_at"`
}

// Message is a single entry of a structured prompt.
type Message struct {
	Role    MessageRole
	Content string
}

type MessageRole string

const (
	MessageSystem MessageRole = "system"
	MessageUser   MessageRole = "user"
)

// Embedder turns text into a vector. One instance must serve both ingestion
// and queries of an index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns the vectors computed before the first failure.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
