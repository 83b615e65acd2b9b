// Package sqlite persists conversations in a local SQLite database using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KamdynS/payroll-agents/memory"

	_ "modernc.org/sqlite"
)

const migrationV1Conversations = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL DEFAULT '',
	meta TEXT NOT NULL DEFAULT '{}',
	messages TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner);
`

// ConversationStore implements memory.ConversationStore on SQLite.
type ConversationStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func Open(path string) (*ConversationStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLITE_BUSY away and makes ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &ConversationStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ConversationStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Conversations},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

func (s *ConversationStore) Load(ctx context.Context, id string) ([]memory.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT messages FROM conversations WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	var msgs []memory.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode messages %s: %w", id, err)
	}
	return msgs, nil
}

func (s *ConversationStore) Create(ctx context.Context, owner string, messages []memory.Message, meta map[string]string) (string, error) {
	msgJSON, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}

	id := memory.NewConversationID()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, owner, meta, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, owner, string(metaJSON), string(msgJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *ConversationStore) Update(ctx context.Context, id string, messages []memory.Message) error {
	msgJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?",
		string(msgJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// ListByOwner returns the ids of an owner's conversations, most recently updated first.
func (s *ConversationStore) ListByOwner(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM conversations WHERE owner = ? ORDER BY updated_at DESC", owner)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ memory.ConversationStore = (*ConversationStore)(nil)
