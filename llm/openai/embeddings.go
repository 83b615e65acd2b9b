package openai

import (
	"context"

	"github.com/KamdynS/payroll-agents/llm"
	"github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingModel is used when Embed is called without a model.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embed generates an embedding vector for the given input text using the specified model.
func (c *Client) Embed(ctx context.Context, input string, model string) ([]float64, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) ([]float64, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{input},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return nil, convertError(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeEmptyResponse, "no embedding returned")
		}

		out := make([]float64, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			out[i] = float64(v)
		}
		return out, nil
	})
}
