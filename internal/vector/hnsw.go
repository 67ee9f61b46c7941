package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

const (
	hnswFileName = "graph.hnsw"
	hnswMagic    = uint32(0x44524832) // "DRH2"
)

// HNSWIndex is an approximate index over a coder/hnsw graph. Graph keys are insertion
// positions; ids and vectors map them back to chunk ids and hold what the graph is
// rebuilt from on Clone and Load.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	ids        []string
	vectors    [][]float32
	dimensions int
	m          int
	efSearch   int
}

// NewHNSWIndex creates an empty graph index. m and efSearch fall back to 16 and 64.
func NewHNSWIndex(dimensions, m, efSearch int) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if m <= 0 {
		m = 16
	}
	if efSearch <= 0 {
		efSearch = 64
	}
	return &HNSWIndex{graph: newGraph(m, efSearch), dimensions: dimensions, m: m, efSearch: efSearch}, nil
}

func newGraph(m, efSearch int) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = m
	g.EfSearch = efSearch
	g.Ml = 0.25
	return g
}

// rebuild returns a graph holding every vector, keyed by position.
func (h *HNSWIndex) rebuild(vectors [][]float32) *hnsw.Graph[uint64] {
	g := newGraph(h.m, h.efSearch)
	if len(vectors) == 0 {
		return g
	}
	nodes := make([]hnsw.Node[uint64], len(vectors))
	for i, v := range vectors {
		nodes[i] = hnsw.MakeNode(uint64(i), v)
	}
	g.Add(nodes...)
	return g
}

// Type returns IndexTypeHNSW.
func (h *HNSWIndex) Type() IndexType { return IndexTypeHNSW }

// FileName returns the file the index is saved under.
func (h *HNSWIndex) FileName() string { return hnswFileName }

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int { return h.dimensions }

// Add inserts vectors as new graph nodes.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	for i := range vectors {
		if len(vectors[i]) != h.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	nodes := make([]hnsw.Node[uint64], len(ids))
	for i := range ids {
		v := append([]float32(nil), vectors[i]...)
		nodes[i] = hnsw.MakeNode(uint64(len(h.ids)+i), v)
		h.vectors = append(h.vectors, v)
	}
	h.graph.Add(nodes...)
	h.ids = append(h.ids, ids...)
	return nil
}

// Search returns up to k approximate nearest ids, most similar first.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), h.dimensions)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || h.graph.Len() == 0 {
		return nil, nil
	}
	nodes := h.graph.Search(query, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, n := range nodes {
		if n.Key >= uint64(len(h.ids)) {
			continue
		}
		results = append(results, &VectorResult{
			ID:    h.ids[n.Key],
			Score: 1 - float64(h.graph.Distance(query, n.Value)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Clone builds a fresh graph from the stored vectors. Vectors are immutable once added,
// so the clone shares them.
func (h *HNSWIndex) Clone() (VectorIndex, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &HNSWIndex{
		graph:      h.rebuild(h.vectors),
		ids:        slices.Clone(h.ids),
		vectors:    slices.Clone(h.vectors),
		dimensions: h.dimensions,
		m:          h.m,
		efSearch:   h.efSearch,
	}, nil
}

// Save writes dir/graph.hnsw: magic, dimension and node count, then per node a
// length-prefixed id and its vector. The graph itself is rebuilt on Load.
func (h *HNSWIndex) Save(dir string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	file, err := os.Create(filepath.Join(dir, hnswFileName))
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	w := bufio.NewWriter(file)
	werr := h.writeNodes(w)
	if werr == nil {
		werr = w.Flush()
	}
	if werr == nil {
		werr = file.Sync()
	}
	if cerr := file.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func (h *HNSWIndex) writeNodes(w io.Writer) error {
	header := []uint32{hnswMagic, uint32(h.dimensions), uint32(len(h.ids))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range h.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, h.vectors[i]); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// Load replaces the index with the nodes in dir/graph.hnsw.
func (h *HNSWIndex) Load(dir string) error {
	file, err := os.Open(filepath.Join(dir, hnswFileName))
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if header[0] != hnswMagic {
		return errors.New("not an hnsw index file")
	}
	if int(header[1]) != h.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, header[1], h.dimensions)
	}
	ids := make([]string, header[2])
	vectors := make([][]float32, header[2])
	for i := range ids {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("read id len %d: %w", i, err)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("read id %d: %w", i, err)
		}
		ids[i] = string(b)
		vectors[i] = make([]float32, h.dimensions)
		if err := binary.Read(r, binary.LittleEndian, vectors[i]); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return errors.New("trailing data after last node")
	}

	g := h.rebuild(vectors)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph, h.ids, h.vectors = g, ids, vectors
	return nil
}

// Size returns the number of nodes.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Close drops the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = newGraph(h.m, h.efSearch)
	h.ids, h.vectors = nil, nil
	return nil
}
