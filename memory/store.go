package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by ConversationStore.Load and Update for ids the
// store has never issued (or has expired).
var ErrNotFound = errors.New("conversation not found")

// ConversationStore persists conversation logs keyed by an opaque id.
// Implementations must be safe for concurrent use. Concurrent writers to the
// same id are last-write-wins.
type ConversationStore interface {
	// Load returns the full ordered message log for id
	Load(ctx context.Context, id string) ([]Message, error)

	// Create stores a new log and returns the id minted for it
	Create(ctx context.Context, owner string, messages []Message, meta map[string]string) (string, error)

	// Update replaces the log for an existing id
	Update(ctx context.Context, id string, messages []Message) error
}

// Message represents a conversation message
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Name      string            `json:"name,omitempty"`
	ToolCall  *ToolCall         `json:"tool_call,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// ToolCall records one tool invocation made while producing an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Conversation is the record stored by the persistent backends.
type Conversation struct {
	ID        string            `json:"id"`
	Owner     string            `json:"owner,omitempty"`
	Messages  []Message         `json:"messages"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversationID mints a conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// CloneMessages returns a copy of msgs that shares no slices or maps with it.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCall != nil {
			tc := *m.ToolCall
			out[i].ToolCall = &tc
		}
		if m.Meta != nil {
			meta := make(map[string]string, len(m.Meta))
			for k, v := range m.Meta {
				meta[k] = v
			}
			out[i].Meta = meta
		}
	}
	return out
}

// VectorStore defines the interface for vector-based retrieval (RAG)
type VectorStore interface {
	// AddDocument adds a document with its vector embedding
	AddDocument(ctx context.Context, id string, content string, embedding []float64) error

	// QuerySimilar finds similar documents based on query embedding
	QuerySimilar(ctx context.Context, queryEmbedding []float64, limit int) ([]Document, error)

	// DeleteDocument removes a document by ID
	DeleteDocument(ctx context.Context, id string) error

	// GetDocument retrieves a document by ID
	GetDocument(ctx context.Context, id string) (*Document, error)
}

// Document represents a stored document with its metadata
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float64         `json:"embedding"`
	Meta      map[string]string `json:"meta,omitempty"`
	Score     float64           `json:"score,omitempty"` // Similarity score for query results
}
