// Package badger persists conversations in an embedded BadgerDB key-value store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/KamdynS/payroll-agents/memory"
)

const keyPrefix = "conversation:"

// ConversationStore implements memory.ConversationStore on BadgerDB.
type ConversationStore struct {
	db  *badger.DB
	ttl time.Duration
}

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// TTL expires idle conversations. Zero keeps them forever.
	TTL time.Duration
}

// Open opens the store.
func Open(opts Options) (*ConversationStore, error) {
	bopts := badger.DefaultOptions(opts.Path).
		WithLoggingLevel(badger.WARNING)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &ConversationStore{db: db, ttl: opts.TTL}, nil
}

// Close closes the underlying database.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

func (s *ConversationStore) entry(id string, conv memory.Conversation) (*badger.Entry, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	e := badger.NewEntry(key(id), data)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e, nil
}

func getConversation(txn *badger.Txn, id string) (memory.Conversation, error) {
	var conv memory.Conversation
	item, err := txn.Get(key(id))
	if err != nil {
		return conv, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	})
	return conv, err
}

func (s *ConversationStore) Load(ctx context.Context, id string) ([]memory.Message, error) {
	var conv memory.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("load %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return conv.Messages, nil
}

func (s *ConversationStore) Create(ctx context.Context, owner string, messages []memory.Message, meta map[string]string) (string, error) {
	now := time.Now().UTC()
	conv := memory.Conversation{
		ID:        memory.NewConversationID(),
		Owner:     owner,
		Messages:  messages,
		Meta:      meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e, err := s.entry(conv.ID, conv)
	if err != nil {
		return "", err
	}
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return conv.ID, nil
}

// Update runs read-modify-write in one transaction. Badger aborts one side of
// two racing transactions with ErrConflict; the loser is retried so the
// store stays last-write-wins like the other backends.
func (s *ConversationStore) Update(ctx context.Context, id string, messages []memory.Message) error {
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			conv, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conv.Messages = messages
			conv.UpdatedAt = time.Now().UTC()
			e, err := s.entry(id, conv)
			if err != nil {
				return err
			}
			return txn.SetEntry(e)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrConflict):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		case errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
		default:
			return fmt.Errorf("update %s: %w", id, err)
		}
	}
}

var _ memory.ConversationStore = (*ConversationStore)(nil)
