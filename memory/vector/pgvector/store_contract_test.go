//go:build adapters_pgvector

package pgvector

import (
	"context"
	"os"
	"testing"
)

func TestVectorContract_Pgvector(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_DSN not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, dsn, "documents")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	vec := make([]float64, 1536)
	vec[0], vec[1] = 0.1, 0.2
	if err := s.AddDocument(ctx, "d1", "FICA is 7.65% for employees", vec); err != nil {
		t.Fatalf("add: %v", err)
	}
	doc, err := s.GetDocument(ctx, "d1")
	if err != nil || doc.ID != "d1" {
		t.Fatalf("get: %v %+v", err, doc)
	}
	docs, err := s.QuerySimilar(ctx, vec, 3)
	if err != nil || len(docs) == 0 {
		t.Fatalf("query: %v %d", err, len(docs))
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
