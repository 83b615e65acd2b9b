package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KamdynS/payroll-agents/memory"
)

// ConversationStore implements memory.ConversationStore in process memory.
// Logs are copied on the way in and out so callers never alias stored state.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*memory.Conversation
}

// NewConversationStore creates a new in-memory conversation store
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		convs: make(map[string]*memory.Conversation),
	}
}

// Load implements memory.ConversationStore
func (cs *ConversationStore) Load(ctx context.Context, id string) ([]memory.Message, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	conv, ok := cs.convs[id]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, memory.ErrNotFound)
	}
	return memory.CloneMessages(conv.Messages), nil
}

// Create implements memory.ConversationStore
func (cs *ConversationStore) Create(ctx context.Context, owner string, messages []memory.Message, meta map[string]string) (string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now()
	id := memory.NewConversationID()
	cs.convs[id] = &memory.Conversation{
		ID:        id,
		Owner:     owner,
		Messages:  memory.CloneMessages(messages),
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// Update implements memory.ConversationStore
func (cs *ConversationStore) Update(ctx context.Context, id string, messages []memory.Message) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	conv, ok := cs.convs[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	conv.Messages = memory.CloneMessages(messages)
	conv.UpdatedAt = time.Now()
	return nil
}

// Len returns the number of stored conversations.
func (cs *ConversationStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.convs)
}

var _ memory.ConversationStore = (*ConversationStore)(nil)
