package indexer

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/vector"
)

const (
	manifestFileName = "manifest.json"
	chunksFileName   = "chunks.gob"
	formatVersion    = 1

	stagingDirName = ".staging"
	trashDirName   = ".trash"
	locksDirName   = ".locks"

	// Parked directories are named <project dir>.<uuid>; '.' cannot appear in a project id.
	swapPrefix    = "swap"
	deletedPrefix = "deleted"
)

// manifest is written last into a project directory and read first when loading it.
type manifest struct {
	FormatVersion int       `json:"format_version"`
	Revision      uint64    `json:"revision"`
	WriteID       string    `json:"write_id"`
	Dimensions    int       `json:"dimensions"`
	IndexType     string    `json:"index_type"`
	ChunkCount    int       `json:"chunk_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// storedChunks is the gob payload of chunks.gob. Vectors are kept beside the index so a
// deletion can rebuild without calling the embedder again.
type storedChunks struct {
	Chunks  []models.Chunk
	IDs     []string
	Vectors [][]float32
}

// snapshot is an immutable view of one project's index. Writers build a new snapshot
// and publish it; readers never see a snapshot change under them.
type snapshot struct {
	manifest manifest
	chunks   []models.Chunk
	ids      []string
	vectors  [][]float32
	pos      map[string]int
	index    vector.VectorIndex
}

func newSnapshot(m manifest, chunks []models.Chunk, ids []string, vectors [][]float32, idx vector.VectorIndex) *snapshot {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	return &snapshot{manifest: m, chunks: chunks, ids: ids, vectors: vectors, pos: pos, index: idx}
}

func (s *snapshot) size() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// diskStore owns the directory layout under the store root:
//
//	<root>/project_<id>/{manifest.json,chunks.gob,<index file>}
//	<root>/.staging/   directories being written
//	<root>/.trash/     directories parked during a swap or deletion
//	<root>/.locks/     one advisory lock file per project
type diskStore struct {
	root   string
	logger *zap.Logger
}

func newDiskStore(root string, logger *zap.Logger) (*diskStore, error) {
	for _, dir := range []string{root, filepath.Join(root, stagingDirName), filepath.Join(root, trashDirName), filepath.Join(root, locksDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &diskStore{root: root, logger: logger}, nil
}

func (s *diskStore) projectDir(project string) string {
	return filepath.Join(s.root, "project_"+project)
}

func (s *diskStore) lockPath(project string) string {
	return filepath.Join(s.root, locksDirName, "project_"+project+".lock")
}

// projects lists the ids of all projects with an index directory.
func (s *diskStore) projects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "project_") {
			out = append(out, strings.TrimPrefix(e.Name(), "project_"))
		}
	}
	return out, nil
}

// readManifest returns fs.ErrNotExist (wrapped) when the project has no index.
func (s *diskStore) readManifest(project string) (manifest, error) {
	return readManifestIn(s.projectDir(project))
}

func readManifestIn(dir string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if m.FormatVersion != formatVersion {
		return m, fmt.Errorf("unsupported format version %d", m.FormatVersion)
	}
	return m, nil
}

// load reads the project's snapshot. It returns (nil, nil) when the project has no index.
func (s *diskStore) load(ctx context.Context, project string, opts vector.Options) (*snapshot, error) {
	snap, err := loadDir(ctx, s.projectDir(project), opts)
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(s.projectDir(project)); errors.Is(statErr, fs.ErrNotExist) {
			return nil, nil
		}
	}
	return snap, err
}

func loadDir(ctx context.Context, dir string, opts vector.Options) (*snapshot, error) {
	m, err := readManifestIn(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, chunksFileName))
	if err != nil {
		return nil, fmt.Errorf("open chunks: %w", err)
	}
	var sc storedChunks
	err = gob.NewDecoder(f).Decode(&sc)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	if len(sc.Chunks) != m.ChunkCount || len(sc.IDs) != m.ChunkCount || len(sc.Vectors) != m.ChunkCount {
		return nil, fmt.Errorf("chunk count mismatch: manifest %d, chunks %d, ids %d, vectors %d",
			m.ChunkCount, len(sc.Chunks), len(sc.IDs), len(sc.Vectors))
	}

	idx, err := vector.NewVectorIndex(m.IndexType, m.Dimensions, opts)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(dir); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load %s index: %w", m.IndexType, err)
	}
	if idx.Size() != m.ChunkCount {
		_ = idx.Close()
		return nil, fmt.Errorf("index holds %d vectors, manifest says %d", idx.Size(), m.ChunkCount)
	}
	if err := ctx.Err(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return newSnapshot(m, sc.Chunks, sc.IDs, sc.Vectors, idx), nil
}

// write persists snap as the project's index. The new directory is written under
// .staging, verified by loading it back, and swapped into place by rename. On any
// error the previous directory is left as it was.
func (s *diskStore) write(ctx context.Context, project string, snap *snapshot, opts vector.Options) error {
	staging := filepath.Join(s.root, stagingDirName, "project_"+project+"."+uuid.NewString())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := writeGob(filepath.Join(staging, chunksFileName), storedChunks{
		Chunks: snap.chunks, IDs: snap.ids, Vectors: snap.vectors,
	}); err != nil {
		return err
	}
	if err := snap.index.Save(staging); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := writeJSON(filepath.Join(staging, manifestFileName), snap.manifest); err != nil {
		return err
	}
	if err := syncDir(staging); err != nil {
		return err
	}

	verified, err := loadDir(ctx, staging, opts)
	if err != nil {
		return fmt.Errorf("verify staged index: %w", err)
	}
	_ = verified.index.Close()
	if verified.manifest.WriteID != snap.manifest.WriteID {
		return errors.New("verify staged index: write id mismatch")
	}

	if err := s.swap(project, staging); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *diskStore) swap(project, staging string) error {
	final := s.projectDir(project)
	var parked string
	if _, err := os.Stat(final); err == nil {
		parked = s.parkedPath(swapPrefix, project)
		if err := os.Rename(final, parked); err != nil {
			return fmt.Errorf("park previous index: %w", err)
		}
	}
	if err := os.Rename(staging, final); err != nil {
		if parked != "" {
			if restoreErr := os.Rename(parked, final); restoreErr != nil {
				s.logger.Error("indexer could not restore parked index",
					zap.String("project", project), zap.String("parked", parked), zap.Error(restoreErr))
			}
		}
		return fmt.Errorf("publish staged index: %w", err)
	}
	if err := syncDir(s.root); err != nil {
		s.logger.Warn("indexer store root sync failed", zap.Error(err))
	}
	if parked != "" {
		if err := os.RemoveAll(parked); err != nil {
			s.logger.Warn("indexer could not remove parked index", zap.String("parked", parked), zap.Error(err))
		}
	}
	return nil
}

// remove deletes the project's directory. It is parked first so a crash mid-delete
// never leaves a half-removed index in place.
func (s *diskStore) remove(project string) error {
	final := s.projectDir(project)
	parked := s.parkedPath(deletedPrefix, project)
	if err := os.Rename(final, parked); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("park index for deletion: %w", err)
	}
	if err := syncDir(s.root); err != nil {
		s.logger.Warn("indexer store root sync failed", zap.Error(err))
	}
	return os.RemoveAll(parked)
}

func (s *diskStore) parkedPath(prefix, project string) string {
	return filepath.Join(s.root, trashDirName, prefix+"-project_"+project+"."+uuid.NewString())
}

// parked returns the parked directories of one kind for project, newest first.
func (s *diskStore) parked(prefix, project string) []string {
	matches, _ := filepath.Glob(filepath.Join(s.root, trashDirName, prefix+"-project_"+project+".*"))
	sort.Slice(matches, func(i, j int) bool { return modTime(matches[i]).After(modTime(matches[j])) })
	return matches
}

// interrupted reports whether a swap for project was parked but not finished.
func (s *diskStore) interrupted(project string) bool {
	return len(s.parked(swapPrefix, project)) > 0
}

// recover finishes or rolls back an interrupted swap or delete. It must run under the
// project lock. A missing directory with a parked swap is restored from the newest one;
// all other parked and staged leftovers for the project are removed.
func (s *diskStore) recover(project string) error {
	final := s.projectDir(project)
	swaps := s.parked(swapPrefix, project)
	if _, err := os.Stat(final); errors.Is(err, fs.ErrNotExist) && len(swaps) > 0 {
		if err := os.Rename(swaps[0], final); err != nil {
			return fmt.Errorf("restore parked index: %w", err)
		}
		s.logger.Warn("indexer restored index after interrupted swap", zap.String("project", project))
		swaps = swaps[1:]
	}
	leftovers := append(swaps, s.parked(deletedPrefix, project)...)
	staged, _ := filepath.Glob(filepath.Join(s.root, stagingDirName, "project_"+project+".*"))
	leftovers = append(leftovers, staged...)
	for _, dir := range leftovers {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("indexer could not remove leftover", zap.String("dir", dir), zap.Error(err))
		}
	}
	return nil
}

// diskBytes sums the size of the project's files.
func (s *diskStore) diskBytes(project string) int64 {
	var total int64
	_ = filepath.WalkDir(s.projectDir(project), func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
