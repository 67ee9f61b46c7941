package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/failure"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/retrieval"
	"github.com/hyperjump/docrag/internal/storage"
)

// fakeIngester decides the outcome from the file name: "empty*" has no text,
// "broken*" fails with an embedding error, anything else yields two chunks.
type fakeIngester struct {
	mu       sync.Mutex
	removed  []string
	removeOK bool

	active, peak atomic.Int32
}

func (f *fakeIngester) Ingest(ctx context.Context, req retrieval.IngestRequest) retrieval.IngestResult {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	name := filepath.Base(req.Path)
	switch {
	case strings.HasPrefix(name, "empty"):
		return retrieval.IngestResult{
			Result:     retrieval.Result{OK: true},
			Extraction: extract.Extraction{Method: extract.MethodNone, Kind: failure.OCRFailure},
		}
	case strings.HasPrefix(name, "broken"):
		err := failure.New(failure.EmbeddingUnavailable, "save_or_update", req.ProjectID, errors.New("connection refused"))
		return retrieval.IngestResult{Result: retrieval.Result{Kind: failure.EmbeddingUnavailable, Err: err, Retryable: true}}
	default:
		return retrieval.IngestResult{
			Result: retrieval.Result{OK: true},
			Chunks: []models.Chunk{{Text: "a", ResourceID: req.ResourceID}, {Text: "b", ChunkIndex: 1, ResourceID: req.ResourceID}},
		}
	}
}

func (f *fakeIngester) Remove(ctx context.Context, projectID, resourceID string) retrieval.RemoveResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.removeOK {
		return retrieval.RemoveResult{Result: retrieval.Result{Kind: failure.DeletionFailure, Err: errors.New("disk full")}}
	}
	f.removed = append(f.removed, projectID+"/"+resourceID)
	return retrieval.RemoveResult{Result: retrieval.Result{OK: true}, Removed: 2}
}

func newTestProcessor(t *testing.T, poolSize int) (*Processor, *storage.SQLiteStorage, *fakeIngester) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ing := &fakeIngester{removeOK: true}
	p, err := New(store, ing, poolSize)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, store, ing
}

func TestProcess_outcomes(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t, 2)

	tests := []struct {
		file       string
		wantStatus models.Status
		wantChunks int
		wantKind   string
	}{
		{"report.pdf", models.StatusComplete, 2, ""},
		{"empty-scan.pdf", models.StatusFailed, 0, "ocr_failure"},
		{"broken.pdf", models.StatusFailed, 0, "embedding_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			r, err := p.Register(ctx, "proj", "/inbox/"+tt.file, "")
			require.NoError(t, err)
			require.NotEmpty(t, r.ID)

			out := p.Process(ctx, r.ID)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantChunks, out.Chunks)

			got, err := store.GetResource(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantChunks, got.ChunkCount)
			assert.Equal(t, tt.wantKind, got.ErrorKind)
			if tt.wantStatus == models.StatusFailed {
				assert.NotEmpty(t, got.Error)
			}
		})
	}
}

func TestProcess_unknownResource(t *testing.T) {
	p, _, _ := newTestProcessor(t, 1)
	out := p.Process(context.Background(), "missing")
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, storage.ErrNotFound)
}

func TestProcessMany_boundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	p, store, ing := newTestProcessor(t, 3)

	var ids []string
	for i := range 12 {
		r, err := p.Register(ctx, "bulk", fmt.Sprintf("/inbox/doc-%02d.pdf", i), fmt.Sprintf("doc-%02d", i))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	outcomes := p.ProcessMany(ctx, ids)
	require.Len(t, outcomes, len(ids))
	for i, out := range outcomes {
		assert.Equal(t, ids[i], out.ResourceID)
		assert.Equal(t, models.StatusComplete, out.Status)
	}
	assert.LessOrEqual(t, ing.peak.Load(), int32(3))

	counts, err := store.CountByStatus(ctx, "bulk")
	require.NoError(t, err)
	assert.Equal(t, int64(12), counts[models.StatusComplete])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	p, store, ing := newTestProcessor(t, 1)

	r, err := p.Register(ctx, "proj", "/inbox/a.pdf", "res-a")
	require.NoError(t, err)

	ing.removeOK = false
	_, err = p.Delete(ctx, r.ID)
	require.Error(t, err)
	_, err = store.GetResource(ctx, r.ID)
	require.NoError(t, err, "ledger row must survive a failed index removal")

	ing.removeOK = true
	n, err := p.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"proj/res-a"}, ing.removed)
	_, err = store.GetResource(ctx, r.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefresh_removesBeforeReingesting(t *testing.T) {
	ctx := context.Background()
	p, store, ing := newTestProcessor(t, 1)

	out := p.Refresh(ctx, "proj", "/inbox/proj/a.pdf", "file-a")
	assert.Equal(t, models.StatusComplete, out.Status)
	out = p.Refresh(ctx, "proj", "/inbox/proj/a.pdf", "file-a")
	assert.Equal(t, models.StatusComplete, out.Status)
	assert.Equal(t, []string{"proj/file-a", "proj/file-a"}, ing.removed)

	list, err := store.ListResources(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ChunkCount)

	ing.removeOK = false
	out = p.Refresh(ctx, "proj", "/inbox/proj/a.pdf", "file-a")
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, failure.DeletionFailure, out.Kind)
}
