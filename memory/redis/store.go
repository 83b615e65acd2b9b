package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KamdynS/payroll-agents/memory"
	rds "github.com/redis/go-redis/v9"
)

// ConversationStore keeps one JSON document per conversation under
// "<prefix>:conversation:<id>". A non-zero ttl is refreshed on every write.
type ConversationStore struct {
	client *rds.Client
	prefix string
	ttl    time.Duration
}

func NewConversationStore(client *rds.Client, prefix string, ttl time.Duration) *ConversationStore {
	return &ConversationStore{client: client, prefix: prefix, ttl: ttl}
}

func (cs *ConversationStore) convKey(id string) string {
	p := cs.prefix
	if p != "" {
		p += ":"
	}
	return fmt.Sprintf("%sconversation:%s", p, id)
}

func (cs *ConversationStore) Load(ctx context.Context, id string) ([]memory.Message, error) {
	val, err := cs.client.Get(ctx, cs.convKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return nil, fmt.Errorf("load %s: %w", id, memory.ErrNotFound)
		}
		return nil, err
	}
	var conv memory.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv.Messages, nil
}

func (cs *ConversationStore) Create(ctx context.Context, owner string, messages []memory.Message, meta map[string]string) (string, error) {
	now := time.Now().UTC()
	conv := memory.Conversation{
		ID:        memory.NewConversationID(),
		Owner:     owner,
		Messages:  messages,
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b, err := json.Marshal(conv)
	if err != nil {
		return "", err
	}
	ok, err := cs.client.SetNX(ctx, cs.convKey(conv.ID), b, cs.ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("conversation %s already exists", conv.ID)
	}
	return conv.ID, nil
}

func (cs *ConversationStore) Update(ctx context.Context, id string, messages []memory.Message) error {
	key := cs.convKey(id)
	val, err := cs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			return fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
		}
		return err
	}
	var conv memory.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return fmt.Errorf("decode conversation %s: %w", id, err)
	}
	conv.Messages = messages
	conv.UpdatedAt = time.Now().UTC()

	b, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	ok, err := cs.client.SetXX(ctx, key, b, cs.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

var _ memory.ConversationStore = (*ConversationStore)(nil)
