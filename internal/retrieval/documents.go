package retrieval

import (
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/hyperjump/docrag/internal/models"
)

// AsDocuments converts hits into langchaingo documents for a downstream chain.
func AsDocuments(hits []models.Hit) []schema.Document {
	docs := make([]schema.Document, len(hits))
	for i, h := range hits {
		docs[i] = schema.Document{
			PageContent: h.Chunk.Text,
			Score:       float32(h.Score),
			Metadata: map[string]any{
				"chunk_index": h.Chunk.ChunkIndex,
				"source_tag":  h.Chunk.SourceTag,
				"resource_id": h.Chunk.ResourceID,
				"rank":        h.Rank,
			},
		}
	}
	return docs
}

// ContextText joins chunk texts into the context block handed to a language model.
func ContextText(chunks []models.Chunk) string {
	texts := models.Texts(chunks)
	return strings.Join(texts, "\n\n")
}
