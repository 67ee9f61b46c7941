package vector

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0}
}

func TestHNSWIndex_AddSearch(t *testing.T) {
	idx, err := NewHNSWIndex(3, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{unit(0), unit(0.2), unit(1.5)}); err != nil {
		t.Fatal(err)
	}
	res, err := idx.Search(ctx, unit(0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].ID != "a" || res[1].ID != "b" {
		t.Fatalf("got %+v", res)
	}
	if math.Abs(res[0].Score-1) > 1e-4 {
		t.Errorf("exact match score = %f", res[0].Score)
	}
}

func TestHNSWIndex_SaveLoadClone(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewHNSWIndex(3, 8, 32)
	ids := make([]string, 20)
	vecs := make([][]float32, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
		vecs[i] = unit(float64(i) * 0.07)
	}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	loaded, _ := NewHNSWIndex(3, 8, 32)
	if err := loaded.Load(dir); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 20 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	res, _ := loaded.Search(ctx, vecs[7], 1)
	if len(res) != 1 || res[0].ID != "id-7" {
		t.Errorf("got %+v", res)
	}

	clone, err := loaded.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if err := clone.Add(ctx, []string{"extra"}, [][]float32{{0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 20 || clone.Size() != 21 {
		t.Errorf("original=%d clone=%d", loaded.Size(), clone.Size())
	}
	res, _ = clone.Search(ctx, []float32{0, 0, 1}, 1)
	if len(res) != 1 || res[0].ID != "extra" {
		t.Errorf("clone search got %+v", res)
	}
}

func TestHNSWIndex_LoadDimensionMismatch(t *testing.T) {
	idx, _ := NewHNSWIndex(3, 0, 0)
	_ = idx.Add(context.Background(), []string{"a"}, [][]float32{unit(0)})
	dir := t.TempDir()
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	other, _ := NewHNSWIndex(4, 0, 0)
	if err := other.Load(dir); err == nil {
		t.Error("expected dimension error")
	}
}

func spread(n int) ([]string, [][]float32) {
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("n-%d", i)
		a, b := float64(i)*0.37, float64(i)*0.11
		vecs[i] = []float32{float32(math.Cos(a) * math.Cos(b)), float32(math.Sin(a) * math.Cos(b)), float32(math.Sin(b)), 0}
	}
	return ids, vecs
}

func TestHNSWIndex_appendsAfterCloneAndLoadAreSearchable(t *testing.T) {
	ctx := context.Background()
	ids, vecs := spread(30)
	idx, _ := NewHNSWIndex(4, 16, 64)
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	loaded, _ := NewHNSWIndex(4, 16, 64)
	if err := loaded.Load(dir); err != nil {
		t.Fatal(err)
	}

	extraIDs := []string{"late-1", "late-2"}
	extraVecs := [][]float32{{0, 0, 0, 1}, {0, 0, 0, -1}}
	for name, base := range map[string]*HNSWIndex{"original": idx, "loaded": loaded} {
		clone, err := base.Clone()
		if err != nil {
			t.Fatal(err)
		}
		if err := clone.Add(ctx, extraIDs, extraVecs); err != nil {
			t.Fatal(err)
		}
		for i, q := range extraVecs {
			res, err := clone.Search(ctx, q, 3)
			if err != nil {
				t.Fatal(err)
			}
			if len(res) == 0 || res[0].ID != extraIDs[i] {
				t.Errorf("%s clone: %s not found first, got %+v", name, extraIDs[i], res)
			}
		}
		if base.Size() != 30 {
			t.Errorf("%s base changed size to %d", name, base.Size())
		}
	}

	if err := loaded.Add(ctx, extraIDs[:1], extraVecs[:1]); err != nil {
		t.Fatal(err)
	}
	res, _ := loaded.Search(ctx, extraVecs[0], 1)
	if len(res) != 1 || res[0].ID != "late-1" {
		t.Errorf("add after load: got %+v", res)
	}
}

func TestHNSWIndex_LoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, hnswFileName), []byte("not a graph file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, _ := NewHNSWIndex(3, 0, 0)
	if err := idx.Load(dir); err == nil {
		t.Error("expected error for garbage file")
	}
}
