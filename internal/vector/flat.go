package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	flatFileName = "vectors.bin"
	flatMagic    = uint32(0x44524631) // "DRF1"
)

// FlatIndex is an exact in-memory index using brute-force inner product search.
type FlatIndex struct {
	mu         sync.RWMutex
	dimensions int
	ids        []string
	vectors    [][]float32
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns IndexTypeFlat.
func (f *FlatIndex) Type() IndexType { return IndexTypeFlat }

// FileName returns the file the index is saved under.
func (f *FlatIndex) FileName() string { return flatFileName }

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int { return f.dimensions }

// Add appends copies of vectors under ids.
func (f *FlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	for i := range vectors {
		if len(vectors[i]) != f.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, append([]float32(nil), vectors[i]...))
	}
	return nil
}

// Search returns the top-k ids by inner product, highest first. Ties keep insertion order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	results := make([]*VectorResult, len(f.ids))
	for i, vec := range f.vectors {
		results[i] = &VectorResult{ID: f.ids[i], Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results[:min(k, len(results))], nil
}

// Clone copies the id and vector slices. Stored vectors are never mutated in place,
// so the copies share their backing arrays.
func (f *FlatIndex) Clone() (VectorIndex, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &FlatIndex{
		dimensions: f.dimensions,
		ids:        append([]string(nil), f.ids...),
		vectors:    append([][]float32(nil), f.vectors...),
	}, nil
}

// Save writes dir/vectors.bin. Format (little endian): magic, dimension, count, then per vector:
// id length, id bytes, dimension float32s. The file is fsynced before returning.
func (f *FlatIndex) Save(dir string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, err := os.Create(filepath.Join(dir, flatFileName))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	werr := f.writeTo(w)
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

func (f *FlatIndex) writeTo(w io.Writer) error {
	header := []uint32{flatMagic, uint32(f.dimensions), uint32(len(f.ids))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, f.dimensions*4)
	for i, id := range f.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		for j, v := range f.vectors[i] {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the contents with dir/vectors.bin. The file dimension must match.
func (f *FlatIndex) Load(dir string) error {
	file, err := os.Open(filepath.Join(dir, flatFileName))
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if header[0] != flatMagic {
		return errors.New("not a flat index file")
	}
	if int(header[1]) != f.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, header[1], f.dimensions)
	}
	n := int(header[2])
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, f.dimensions*4)
	for i := 0; i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len %d: %w", i, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, f.dimensions)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		ids = append(ids, string(idBytes))
		vectors = append(vectors, vec)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return errors.New("trailing data after index entries")
	}

	f.mu.Lock()
	f.ids, f.vectors = ids, vectors
	f.mu.Unlock()
	return nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}
