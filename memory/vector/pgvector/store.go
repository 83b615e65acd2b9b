// Package pgvector stores knowledge-base chunks in Postgres with the pgvector
// extension. Expected schema:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE IF NOT EXISTS documents (
//	  id text PRIMARY KEY,
//	  content text NOT NULL,
//	  embedding vector(1536),
//	  meta jsonb
//	);
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KamdynS/payroll-agents/memory"
)

type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Connect opens a pool against dsn.
func Connect(ctx context.Context, dsn, table string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector: %w", err)
	}
	return New(pool, table), nil
}

func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = "documents"
	}
	return &Store{pool: pool, table: table}
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// vectorLiteral renders an embedding in pgvector's text input format.
func vectorLiteral(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (s *Store) AddDocument(ctx context.Context, id string, content string, embedding []float64) error {
	return s.AddDocumentWithMeta(ctx, id, content, embedding, nil)
}

// AddDocumentWithMeta upserts a chunk with source metadata.
func (s *Store) AddDocumentWithMeta(ctx context.Context, id, content string, embedding []float64, meta map[string]string) error {
	if len(embedding) == 0 {
		return errors.New("empty embedding")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, content, embedding, meta) VALUES ($1, $2, $3::vector, $4::jsonb) "+
			"ON CONFLICT (id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, meta = excluded.meta",
		pgx.Identifier{s.table}.Sanitize()), id, content, vectorLiteral(embedding), string(metaJSON))
	return err
}

// QuerySimilar orders by cosine distance; Score is the cosine similarity.
func (s *Store) QuerySimilar(ctx context.Context, queryEmbedding []float64, limit int) ([]memory.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT id, content, 1 - (embedding <=> $1::vector) AS score FROM %s ORDER BY embedding <=> $1::vector ASC LIMIT $2",
		pgx.Identifier{s.table}.Sanitize()), vectorLiteral(queryEmbedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memory.Document, 0, limit)
	for rows.Next() {
		var doc memory.Document
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Score); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", pgx.Identifier{s.table}.Sanitize()), id)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*memory.Document, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT id, content FROM %s WHERE id = $1", pgx.Identifier{s.table}.Sanitize()), id)
	var doc memory.Document
	if err := row.Scan(&doc.ID, &doc.Content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s not found", id)
		}
		return nil, err
	}
	return &doc, nil
}

var _ memory.VectorStore = (*Store)(nil)
