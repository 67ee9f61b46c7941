package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/docrag/pkg/utils"
)

// CompatibleEmbedder talks to an OpenAI-compatible embedding server (Ollama, LM Studio,
// vLLM) through langchaingo.
type CompatibleEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
}

// NewCompatibleEmbedder creates an embedder for model served at baseURL.
// Local servers usually ignore the token; "none" is sent when token is empty.
func NewCompatibleEmbedder(baseURL, token, model string, dimensions, batchSize int) (*CompatibleEmbedder, error) {
	if baseURL == "" {
		return nil, errors.New("compatible embedder: base url not set")
	}
	if dimensions <= 0 {
		return nil, errors.New("compatible embedder: dimensions must be positive")
	}
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("compatible embedder client: %w", err)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	emb, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("compatible embedder: %w", err)
	}
	return &CompatibleEmbedder{embedder: emb, dimensions: dimensions}, nil
}

// Embed returns the embedding of a single text.
func (e *CompatibleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.check(vec)
}

// EmbedBatch embeds texts; langchaingo splits them into server-sized batches.
func (e *CompatibleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d inputs", len(vecs), len(texts))
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if out[i], err = e.check(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *CompatibleEmbedder) check(vec []float32) ([]float32, error) {
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(vec), e.dimensions)
	}
	return utils.Normalized(vec), nil
}

// Dimensions returns the configured embedding dimension.
func (e *CompatibleEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *CompatibleEmbedder) Close() error {
	return nil
}
