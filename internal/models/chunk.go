// Package models defines the core data structures for chunks, resources, and retrieval hits.
package models

import "fmt"

// Chunk is a bounded span of extracted text, the unit stored in and retrieved from a
// project index. Chunks are values and are never mutated after the chunker creates them.
type Chunk struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	// ResourceID scopes deletion. Empty means the chunk is not tied to a resource.
	ResourceID string `json:"resource_id,omitempty"`
	SourceTag  string `json:"source_tag"`
}

// SourceTag returns the tag recorded for the chunk at position i.
func SourceTag(i int) string {
	return fmt.Sprintf("chunk_%d", i)
}

// WithResource returns a copy of c attributed to resourceID.
func (c Chunk) WithResource(resourceID string) Chunk {
	c.ResourceID = resourceID
	return c
}

// Texts returns the text of each chunk, in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
