package vector

import (
	"context"
	"fmt"
)

// IndexType names a vector index implementation.
type IndexType string

const (
	// IndexTypeFlat is exact brute-force search. Good for the few thousand chunks a project holds.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeHNSW is approximate graph search, for projects with large document sets.
	IndexTypeHNSW IndexType = "hnsw"
)

// Options tune index construction. Zero values use the implementation defaults.
type Options struct {
	HNSWM        int
	HNSWEfSearch int
}

// NewVectorIndex creates an empty index of the given type. Empty type means flat.
func NewVectorIndex(indexType string, dimensions int, opts Options) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions)
	case IndexTypeHNSW:
		return NewHNSWIndex(dimensions, opts.HNSWM, opts.HNSWEfSearch)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, hnsw)", indexType)
	}
}

// Build creates an index of the given type holding exactly ids and vectors.
func Build(ctx context.Context, indexType string, dimensions int, opts Options, ids []string, vectors [][]float32) (VectorIndex, error) {
	idx, err := NewVectorIndex(indexType, dimensions, opts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return idx, nil
	}
	if err := idx.Add(ctx, ids, vectors); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}
