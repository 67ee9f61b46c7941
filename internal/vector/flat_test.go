package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
}

func TestFlatIndex_dimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected dimension error on Add")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected dimension error on Search")
	}
	if err := idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestFlatIndex_emptySearch(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	res, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil || len(res) != 0 {
		t.Errorf("got %v, %v", res, err)
	}
}

func TestFlatIndex_CloneIsIndependent(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}})
	clone, err := idx.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if err := clone.Add(ctx, []string{"y"}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 || clone.Size() != 2 {
		t.Errorf("original=%d clone=%d", idx.Size(), clone.Size())
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}
	idx2, _ := NewFlatIndex(2)
	if err := idx2.Load(dir); err != nil {
		t.Fatal(err)
	}
	if idx2.Size() != 2 {
		t.Errorf("loaded size %d", idx2.Size())
	}
	res, _ := idx2.Search(ctx, []float32{0, 1}, 1)
	if len(res) != 1 || res[0].ID != "y" {
		t.Errorf("got %v", res)
	}
}

func TestFlatIndex_LoadRejectsBadFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, _ := NewFlatIndex(2)
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}})
	if err := idx.Save(dir); err != nil {
		t.Fatal(err)
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		other, _ := NewFlatIndex(3)
		if err := other.Load(dir); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(dir, flatFileName)
		data, _ := os.ReadFile(path)
		bad := t.TempDir()
		if err := os.WriteFile(filepath.Join(bad, flatFileName), data[:len(data)-3], 0644); err != nil {
			t.Fatal(err)
		}
		other, _ := NewFlatIndex(2)
		if err := other.Load(bad); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("garbage", func(t *testing.T) {
		bad := t.TempDir()
		_ = os.WriteFile(filepath.Join(bad, flatFileName), []byte("not an index at all"), 0644)
		other, _ := NewFlatIndex(2)
		if err := other.Load(bad); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("missing", func(t *testing.T) {
		other, _ := NewFlatIndex(2)
		if err := other.Load(t.TempDir()); err == nil {
			t.Error("expected error")
		}
	})
}
