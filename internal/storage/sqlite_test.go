package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docrag/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := &models.Resource{ID: "res-1", ProjectID: "acme", Path: "/tmp/a.pdf"}
	require.NoError(t, store.CreateResource(ctx, r))
	assert.Equal(t, models.StatusPending, r.Status)
	assert.False(t, r.CreatedAt.IsZero())

	err := store.CreateResource(ctx, &models.Resource{ID: "res-1", ProjectID: "acme", Path: "/tmp/b.pdf"})
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, store.UpdateStatus(ctx, "res-1", models.StatusComplete, 12, "", ""))
	got, err := store.GetResource(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.Equal(t, 12, got.ChunkCount)
	assert.Equal(t, "/tmp/a.pdf", got.Path)

	require.NoError(t, store.UpdateStatus(ctx, "res-1", models.StatusFailed, 0, "embedding_unavailable", "timeout"))
	got, err = store.GetResource(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "embedding_unavailable", got.ErrorKind)
	assert.Equal(t, "timeout", got.Error)

	require.NoError(t, store.DeleteResource(ctx, "res-1"))
	_, err = store.GetResource(ctx, "res-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteResource(ctx, "res-1"), ErrNotFound)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "res-1", models.StatusComplete, 1, "", ""), ErrNotFound)
}

func TestSQLiteStorage_upsertResets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertResource(ctx, &models.Resource{ID: "r", ProjectID: "p", Path: "/old.pdf"}))
	require.NoError(t, store.UpdateStatus(ctx, "r", models.StatusFailed, 0, "ocr_failure", "no text"))
	require.NoError(t, store.UpsertResource(ctx, &models.Resource{ID: "r", ProjectID: "p", Path: "/new.pdf"}))

	got, err := store.GetResource(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "/new.pdf", got.Path)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.ErrorKind)
}

func TestSQLiteStorage_listAndCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, r := range []*models.Resource{
		{ID: "a1", ProjectID: "a", Path: "1.pdf"},
		{ID: "a2", ProjectID: "a", Path: "2.pdf"},
		{ID: "b1", ProjectID: "b", Path: "3.pdf"},
	} {
		require.NoError(t, store.CreateResource(ctx, r))
	}
	require.NoError(t, store.UpdateStatus(ctx, "a2", models.StatusComplete, 3, "", ""))

	list, err := store.ListResources(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].ID)

	counts, err := store.CountByStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{models.StatusPending: 1, models.StatusComplete: 1}, counts)

	counts, err = store.CountByStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusPending])
}

func TestSQLiteStorage_rejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.Error(t, store.CreateResource(ctx, &models.Resource{ProjectID: "p"}))
	assert.Error(t, store.CreateResource(ctx, &models.Resource{ID: "x", ProjectID: "../p"}))
	assert.Error(t, store.CreateResource(ctx, &models.Resource{ID: "x", ProjectID: "p", Status: "done"}))
	require.NoError(t, store.CreateResource(ctx, &models.Resource{ID: "x", ProjectID: "p"}))
	assert.Error(t, store.UpdateStatus(ctx, "x", "done", 0, "", ""))
}
