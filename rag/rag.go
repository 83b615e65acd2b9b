package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/KamdynS/payroll-agents/llm/openai"
	"github.com/KamdynS/payroll-agents/memory"
)

// Retriever returns knowledge-base passages relevant to a query. Agent units
// treat retrieval as best-effort enrichment.
type Retriever interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Chunk splits text into roughly fixed-size chunks by rune count with simple paragraph awareness.
func Chunk(text string, approxChunkSize int) []string {
	if approxChunkSize <= 0 {
		approxChunkSize = 1200
	}
	paras := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paras {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if cur.Len()+len(p) > approxChunkSize && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if len(p) > approxChunkSize {
			// Hard split long paragraph
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			r := []rune(p)
			for i := 0; i < len(r); i += approxChunkSize {
				end := min(i+approxChunkSize, len(r))
				chunks = append(chunks, string(r[i:end]))
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Embedder provides text embeddings.
type Embedder interface {
	EmbedText(ctx context.Context, input string) ([]float64, error)
}

// OpenAIEmbedder implements Embedder using OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates a new embedder.
func NewOpenAIEmbedder(cfg openai.Config, model string) (*OpenAIEmbedder, error) {
	c, err := openai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{client: c, model: model}, nil
}

// EmbedText returns a single vector for the input text.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, input string) ([]float64, error) {
	model := e.model
	if model == "" || strings.Contains(model, "gpt") {
		model = openai.DefaultEmbeddingModel
	}
	return e.client.Embed(ctx, input, model)
}

// IndexDocuments chunks, embeds and upserts content into a VectorStore.
// Documents are indexed in id order.
func IndexDocuments(ctx context.Context, store memory.VectorStore, emb Embedder, docs map[string]string) (int, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		for i, ch := range Chunk(docs[id], 1200) {
			cid := fmt.Sprintf("%s#%d", id, i)
			vec, err := emb.EmbedText(ctx, ch)
			if err != nil {
				return n, fmt.Errorf("embed %s: %w", cid, err)
			}
			if err := store.AddDocument(ctx, cid, ch, vec); err != nil {
				return n, fmt.Errorf("upsert %s: %w", cid, err)
			}
			n++
		}
	}
	return n, nil
}

// Query retrieves topK documents by embedding similarity for the question.
func Query(ctx context.Context, store memory.VectorStore, emb Embedder, question string, topK int) ([]memory.Document, error) {
	if topK <= 0 {
		topK = 5
	}
	qvec, err := emb.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}
	return store.QuerySimilar(ctx, qvec, topK)
}

// BuildContext formats retrieved passages into a context string for prompts.
func BuildContext(passages []string) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[D%d]\n%s\n\n", i+1, strings.TrimSpace(p))
	}
	return b.String()
}

// VectorRetriever answers Search from a vector store.
type VectorRetriever struct {
	Store    memory.VectorStore
	Embedder Embedder
	TopK     int
	// MinScore drops weak matches. Zero keeps everything.
	MinScore float64
}

func (v *VectorRetriever) Search(ctx context.Context, query string) ([]string, error) {
	docs, err := Query(ctx, v.Store, v.Embedder, query, v.TopK)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if v.MinScore > 0 && d.Score < v.MinScore {
			continue
		}
		out = append(out, d.Content)
	}
	return out, nil
}

// NopRetriever never finds anything. Used when no knowledge base is configured.
type NopRetriever struct{}

func (NopRetriever) Search(ctx context.Context, query string) ([]string, error) { return nil, nil }

var (
	_ Retriever = (*VectorRetriever)(nil)
	_ Retriever = NopRetriever{}
)
