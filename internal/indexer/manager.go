package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/failure"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/vector"
)

const (
	opSaveOrUpdate   = "save_or_update"
	opGetRelevant    = "get_relevant"
	opRemoveResource = "remove_resource"
)

// Manager owns the per-project vector indices under one store root. Writers for a
// project are serialized; readers use the last published snapshot without locking.
type Manager struct {
	store        *diskStore
	cache        *indexCache
	locks        *projectLocks
	loads        singleflight.Group
	embedder     embedding.Embedder
	indexType    string
	indexOpts    vector.Options
	embedTimeout time.Duration
	defaultK     int
	maxProjects  int
	cacheTTL     time.Duration
	revalidate   time.Duration
	logger       *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIndexType selects the index used for newly created projects. Existing projects
// keep the type recorded in their manifest.
func WithIndexType(indexType string, opts vector.Options) Option {
	return func(m *Manager) { m.indexType, m.indexOpts = indexType, opts }
}

// WithCache bounds the snapshot cache.
func WithCache(maxProjects int, ttl time.Duration) Option {
	return func(m *Manager) { m.maxProjects, m.cacheTTL = maxProjects, ttl }
}

// WithRevalidateAfter lets readers serve a cached snapshot without checking the manifest
// on disk for d after it was last verified. Writes from other processes become visible
// within d. Zero checks on every query.
func WithRevalidateAfter(d time.Duration) Option {
	return func(m *Manager) { m.revalidate = max(d, 0) }
}

// WithEmbedTimeout bounds each embedding call. Zero means no bound beyond the caller's context.
func WithEmbedTimeout(d time.Duration) Option {
	return func(m *Manager) { m.embedTimeout = d }
}

// WithDefaultK sets the result count used when a query asks for k <= 0.
func WithDefaultK(k int) Option {
	return func(m *Manager) { m.defaultK = k }
}

// NewManager opens the store at root, creating it if needed.
func NewManager(root string, embedder embedding.Embedder, opts ...Option) (*Manager, error) {
	m := &Manager{
		embedder:    embedder,
		indexType:   string(vector.IndexTypeFlat),
		defaultK:    models.DefaultK,
		maxProjects: 64,
		cacheTTL:    30 * time.Minute,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	store, err := newDiskStore(root, m.logger)
	if err != nil {
		return nil, err
	}
	m.store = store
	m.locks = newProjectLocks(store.lockPath)
	m.cache = newIndexCache(m.maxProjects, m.cacheTTL, m.logger)
	return m, nil
}

// FromConfig builds a Manager from the store, cache, embedding and retrieval sections.
func FromConfig(cfg *config.Config, embedder embedding.Embedder, logger *zap.Logger) (*Manager, error) {
	return NewManager(cfg.Store.Root, embedder,
		WithLogger(logger),
		WithIndexType(cfg.Store.IndexType, vector.Options{HNSWM: cfg.Store.HNSWM, HNSWEfSearch: cfg.Store.HNSWEfSearch}),
		WithCache(cfg.Cache.MaxProjects, cfg.Cache.TTL),
		WithRevalidateAfter(cfg.Cache.RevalidateAfter),
		WithEmbedTimeout(cfg.Embedding.Timeout),
		WithDefaultK(cfg.Retrieval.DefaultK),
	)
}

// SaveOrUpdate embeds chunks and appends them to the project's index, creating it on
// first use. The whole index is persisted before the new snapshot is published, so a
// failure leaves both memory and disk as they were.
func (m *Manager) SaveOrUpdate(ctx context.Context, chunks []models.Chunk, project string) error {
	if err := models.ValidateProjectID(project); err != nil {
		return failure.New(failure.InvalidInput, opSaveOrUpdate, project, err)
	}
	if len(chunks) == 0 {
		m.logger.Warn("indexer save called with no chunks", zap.String("project", project))
		return failure.New(failure.NoDocuments, opSaveOrUpdate, project, nil)
	}

	vectors, err := m.embed(ctx, models.Texts(chunks))
	if err != nil {
		return m.embedFailure(opSaveOrUpdate, project, err)
	}

	release, err := m.locks.acquire(ctx, project)
	if err != nil {
		return failure.New(failure.IndexWriteFailure, opSaveOrUpdate, project, err)
	}
	defer release()

	base, err := m.current(ctx, project)
	if err != nil {
		return failure.New(failure.IndexLoadFailure, opSaveOrUpdate, project, err)
	}
	next, err := m.extend(ctx, base, chunks, vectors)
	if err != nil {
		return failure.New(failure.IndexWriteFailure, opSaveOrUpdate, project, err)
	}
	if err := m.store.write(ctx, project, next, m.indexOpts); err != nil {
		_ = next.index.Close()
		m.logger.Error("indexer persist failed", zap.String("project", project), zap.Error(err))
		return failure.New(failure.IndexWriteFailure, opSaveOrUpdate, project, err)
	}
	m.apply(project, evSaved, next)
	m.logger.Info("indexer saved chunks",
		zap.String("project", project),
		zap.Int("added", len(chunks)),
		zap.Int("total", next.size()),
		zap.Uint64("revision", next.manifest.Revision))
	return nil
}

// GetRelevant returns up to k chunks most similar to query, most relevant first.
// A project with no index yields an empty result and a nil error.
func (m *Manager) GetRelevant(ctx context.Context, query, project string, k int) ([]models.Chunk, error) {
	hits, err := m.Search(ctx, models.Query{Text: query, ProjectID: project, K: k})
	if err != nil {
		return nil, err
	}
	return models.Chunks(hits), nil
}

// Search is GetRelevant with scores and a minimum score filter.
func (m *Manager) Search(ctx context.Context, q models.Query) ([]models.Hit, error) {
	if q.K <= 0 {
		q.K = m.defaultK
	}
	if err := q.Validate(); err != nil {
		return nil, failure.New(failure.InvalidInput, opGetRelevant, q.ProjectID, err)
	}
	snap, err := m.snapshot(ctx, q.ProjectID)
	if err != nil {
		m.logger.Error("indexer load failed", zap.String("project", q.ProjectID), zap.Error(err))
		return nil, failure.New(failure.IndexLoadFailure, opGetRelevant, q.ProjectID, err)
	}
	if snap.size() == 0 {
		return nil, nil
	}

	vecs, err := m.embed(ctx, []string{q.Text})
	if err != nil {
		return nil, m.embedFailure(opGetRelevant, q.ProjectID, err)
	}
	results, err := snap.index.Search(ctx, vecs[0], q.K)
	if err != nil {
		return nil, failure.New(failure.IndexLoadFailure, opGetRelevant, q.ProjectID, err)
	}
	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		i, ok := snap.pos[r.ID]
		if !ok || (q.MinScore != 0 && r.Score < q.MinScore) {
			continue
		}
		hits = append(hits, models.Hit{Chunk: snap.chunks[i], Score: r.Score, Rank: len(hits) + 1})
	}
	return hits, nil
}

// RemoveResource deletes every chunk attributed to resourceID and rebuilds the index
// from the remaining chunks' stored vectors. Removing the last chunk deletes the
// project's directory. A resource with no chunks in the index changes nothing.
// It returns the number of chunks removed.
func (m *Manager) RemoveResource(ctx context.Context, project, resourceID string) (int, error) {
	if err := models.ValidateProjectID(project); err != nil {
		return 0, failure.New(failure.InvalidInput, opRemoveResource, project, err)
	}
	if resourceID == "" {
		return 0, failure.New(failure.InvalidInput, opRemoveResource, project, errors.New("empty resource id"))
	}

	release, err := m.locks.acquire(ctx, project)
	if err != nil {
		return 0, failure.New(failure.DeletionFailure, opRemoveResource, project, err)
	}
	defer release()

	base, err := m.current(ctx, project)
	if err != nil {
		return 0, failure.New(failure.IndexLoadFailure, opRemoveResource, project, err)
	}
	if base == nil {
		return 0, nil
	}

	var (
		chunks  []models.Chunk
		ids     []string
		vectors [][]float32
	)
	for i, c := range base.chunks {
		if c.ResourceID == resourceID {
			continue
		}
		chunks = append(chunks, c)
		ids = append(ids, base.ids[i])
		vectors = append(vectors, base.vectors[i])
	}
	removed := base.size() - len(chunks)
	if removed == 0 {
		m.logger.Debug("indexer resource not in index",
			zap.String("project", project), zap.String("resource", resourceID))
		return 0, nil
	}

	if len(chunks) == 0 {
		if err := m.store.remove(project); err != nil {
			return 0, failure.New(failure.DeletionFailure, opRemoveResource, project, err)
		}
		m.apply(project, evDrained, nil)
		m.logger.Info("indexer removed last resource, project index deleted",
			zap.String("project", project), zap.String("resource", resourceID), zap.Int("removed", removed))
		return removed, nil
	}

	idx, err := vector.Build(ctx, string(base.index.Type()), base.manifest.Dimensions, m.indexOpts, ids, vectors)
	if err != nil {
		return 0, failure.New(failure.DeletionFailure, opRemoveResource, project, err)
	}
	next := newSnapshot(m.nextManifest(base, idx, len(chunks)), chunks, ids, vectors, idx)
	if err := m.store.write(ctx, project, next, m.indexOpts); err != nil {
		_ = idx.Close()
		return 0, failure.New(failure.DeletionFailure, opRemoveResource, project, err)
	}
	m.apply(project, evRebuilt, next)
	m.logger.Info("indexer removed resource",
		zap.String("project", project),
		zap.String("resource", resourceID),
		zap.Int("removed", removed),
		zap.Int("remaining", len(chunks)))
	return removed, nil
}

// State reports whether the project's snapshot is currently held in memory.
func (m *Manager) State(project string) State {
	if _, ok := m.cache.get(project); ok {
		return Loaded
	}
	return Absent
}

// ProjectStats describes one project's index.
type ProjectStats struct {
	Project    string `json:"project"`
	State      string `json:"state"`
	Chunks     int    `json:"chunks"`
	Resources  int    `json:"resources"`
	Revision   uint64 `json:"revision"`
	IndexType  string `json:"index_type,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	DiskBytes  int64  `json:"disk_bytes"`
}

// Stats loads the project's index if needed and summarizes it.
func (m *Manager) Stats(ctx context.Context, project string) (ProjectStats, error) {
	st := ProjectStats{Project: project}
	if err := models.ValidateProjectID(project); err != nil {
		return st, failure.New(failure.InvalidInput, "stats", project, err)
	}
	snap, err := m.snapshot(ctx, project)
	if err != nil {
		return st, failure.New(failure.IndexLoadFailure, "stats", project, err)
	}
	st.State = m.State(project).String()
	if snap == nil {
		return st, nil
	}
	resources := make(map[string]struct{})
	for _, c := range snap.chunks {
		if c.ResourceID != "" {
			resources[c.ResourceID] = struct{}{}
		}
	}
	st.Chunks = snap.size()
	st.Resources = len(resources)
	st.Revision = snap.manifest.Revision
	st.IndexType = snap.manifest.IndexType
	st.Dimensions = snap.manifest.Dimensions
	st.DiskBytes = m.store.diskBytes(project)
	return st, nil
}

// Projects lists the projects that have an index on disk, sorted.
func (m *Manager) Projects() ([]string, error) {
	ids, err := m.store.projects()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// Evict drops the project's snapshot from memory.
func (m *Manager) Evict(project string) {
	m.apply(project, evEvicted, nil)
}

// Close drops all cached snapshots. The embedder is owned by the caller.
func (m *Manager) Close() error {
	m.cache.purge()
	return nil
}

// current returns the snapshot a writer must build on: the cached one if it matches the
// revision on disk, otherwise a fresh load. Callers hold the project lock.
func (m *Manager) current(ctx context.Context, project string) (*snapshot, error) {
	if err := m.store.recover(project); err != nil {
		return nil, err
	}
	onDisk, err := m.store.readManifest(project)
	if errors.Is(err, fs.ErrNotExist) {
		m.apply(project, evEvicted, nil)
		return nil, nil
	}
	if cached, ok := m.cache.get(project); ok && err == nil && cached.manifest.WriteID == onDisk.WriteID {
		return cached, nil
	}
	snap, err := m.store.load(ctx, project, m.indexOpts)
	if err != nil {
		m.apply(project, evLoadFailed, nil)
		return nil, err
	}
	if snap != nil {
		m.apply(project, evLoaded, snap)
	}
	return snap, nil
}

// snapshot returns the published snapshot for readers, loading it on a miss. It
// returns (nil, nil) for a project with no index.
func (m *Manager) snapshot(ctx context.Context, project string) (*snapshot, error) {
	if snap, ok := m.cache.fresh(project, m.revalidate); ok {
		return snap, nil
	}
	onDisk, err := m.store.readManifest(project)
	cached, ok := m.cache.get(project)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if m.store.interrupted(project) {
			if ok {
				return cached, nil
			}
			return m.repair(ctx, project)
		}
		if ok {
			m.apply(project, evEvicted, nil)
		}
		if _, statErr := os.Stat(m.store.projectDir(project)); statErr == nil {
			return nil, fmt.Errorf("index directory without manifest: %w", err)
		}
		return nil, nil
	case err != nil:
		m.apply(project, evLoadFailed, nil)
		return nil, err
	case ok && cached.manifest.WriteID == onDisk.WriteID:
		m.cache.markVerified(project)
		return cached, nil
	}

	v, err, _ := m.loads.Do(project, func() (any, error) {
		snap, err := m.store.load(context.WithoutCancel(ctx), project, m.indexOpts)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			m.logger.Debug("indexer loaded project",
				zap.String("project", project), zap.Int("chunks", snap.size()))
			m.applyRead(project, snap)
		}
		return snap, nil
	})
	if err != nil {
		m.apply(project, evLoadFailed, nil)
		return nil, err
	}
	snap, _ := v.(*snapshot)
	return snap, nil
}

// repair finishes an interrupted swap found by a reader, then loads the result.
func (m *Manager) repair(ctx context.Context, project string) (*snapshot, error) {
	release, err := m.locks.acquire(ctx, project)
	if err != nil {
		return nil, err
	}
	defer release()
	return m.current(ctx, project)
}

// apply moves the project to the state that ev leads to and makes the cache agree.
func (m *Manager) apply(project string, ev event, snap *snapshot) {
	before := m.State(project)
	after := transition(before, ev)
	if after == Loaded && snap != nil {
		m.cache.put(project, snap)
	} else if after == Absent {
		m.cache.remove(project)
	}
	if before != after {
		m.logger.Debug("indexer state change",
			zap.String("project", project),
			zap.String("event", ev.String()),
			zap.String("from", before.String()),
			zap.String("to", after.String()))
	}
}

// applyRead publishes a snapshot loaded by a reader without overwriting a newer one.
func (m *Manager) applyRead(project string, snap *snapshot) {
	if transition(m.State(project), evLoaded) == Loaded {
		m.cache.putIfNewer(project, snap)
	}
}

func (m *Manager) extend(ctx context.Context, base *snapshot, chunks []models.Chunk, vectors [][]float32) (*snapshot, error) {
	ids := make([]string, len(chunks))
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	var idx vector.VectorIndex
	var err error
	if base == nil {
		idx, err = vector.NewVectorIndex(m.indexType, m.embedder.Dimensions(), m.indexOpts)
	} else {
		idx, err = base.index.Clone()
	}
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, ids, vectors); err != nil {
		_ = idx.Close()
		return nil, err
	}

	var (
		allChunks  []models.Chunk
		allIDs     []string
		allVectors [][]float32
	)
	if base != nil {
		allChunks = slices.Clone(base.chunks)
		allIDs = slices.Clone(base.ids)
		allVectors = slices.Clone(base.vectors)
	}
	allChunks = append(allChunks, chunks...)
	allIDs = append(allIDs, ids...)
	allVectors = append(allVectors, vectors...)
	return newSnapshot(m.nextManifest(base, idx, len(allChunks)), allChunks, allIDs, allVectors, idx), nil
}

func (m *Manager) nextManifest(base *snapshot, idx vector.VectorIndex, count int) manifest {
	var rev uint64
	if base != nil {
		rev = base.manifest.Revision
	}
	return manifest{
		FormatVersion: formatVersion,
		Revision:      rev + 1,
		WriteID:       uuid.NewString(),
		Dimensions:    idx.Dimensions(),
		IndexType:     string(idx.Type()),
		ChunkCount:    count,
		UpdatedAt:     time.Now().UTC(),
	}
}

func (m *Manager) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.embedTimeout)
		defer cancel()
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (m *Manager) embedFailure(op, project string, err error) error {
	m.logger.Warn("indexer embedding failed", zap.String("project", project), zap.String("op", op), zap.Error(err))
	fe := failure.New(failure.EmbeddingUnavailable, op, project, err)
	fe.Retryable = true
	return fe
}
