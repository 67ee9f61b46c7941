// Package vector provides the nearest-neighbour indices that back each project store.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// VectorIndex stores vectors under string ids and answers top-k similarity queries.
// There is no delete: callers rebuild a fresh index from the vectors they keep.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Clone returns an independent copy; mutating the copy never affects the original.
	Clone() (VectorIndex, error)
	// Save writes the index into dir under FileName(); Load reads it back.
	Save(dir string) error
	Load(dir string) error
	Size() int
	Dimensions() int
	Type() IndexType
	// FileName is the file the index occupies inside a store directory.
	FileName() string
	Close() error
}

// VectorResult is a single search hit.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity for unit vectors
}
