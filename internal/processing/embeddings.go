package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbeddingDim is the fixed dimension of the entity embedding column.
const EmbeddingDim = 768

const defaultEmbeddingModel = "nomic-embed-text"

// Embedder turns query text into vectors comparable with stored entity embeddings.
type Embedder struct {
	client embeddings.Embedder
	dim    int
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server.
func NewOllamaEmbedder(serverURL, model string) (*Embedder, error) {
	if model == "" {
		model = defaultEmbeddingModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return NewEmbedder(emb, EmbeddingDim), nil
}

func NewEmbedder(client embeddings.Embedder, dim int) *Embedder {
	return &Embedder{client: client, dim: dim}
}

// QueryEmbedding produces an embedding for a query string.
func (e *Embedder) QueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, errors.New("empty query")
	}
	vec, err := e.client.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if e.dim > 0 && len(vec) != e.dim {
		return nil, fmt.Errorf("expected embedding dim %d, got %d", e.dim, len(vec))
	}
	return vec, nil
}
