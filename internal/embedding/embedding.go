// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
// Default model: text-embedding-3-small (1536 dims).
func NewOpenAIEmbedder(apiKey string, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	m := openai.SmallEmbedding3
	dims := 1536
	switch model {
	case "", string(openai.SmallEmbedding3):
	case string(openai.LargeEmbedding3):
		m = openai.LargeEmbedding3
		dims = 3072
	case string(openai.AdaEmbeddingV2):
		m = openai.AdaEmbeddingV2
		dims = 1536
	default:
		return nil, fmt.Errorf("unsupported embedding model: %s", model)
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  m,
		dims:   dims,
	}, nil
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// Dims returns the vector dimensionality of the configured model.
func (e *OpenAIEmbedder) Dims() int {
	return e.dims
}
