package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docrag/internal/models"
)

// SQLiteStorage implements ResourceStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the ledger at dbPath. Parent directories are created.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_project ON resources(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(status);
	`
	_, err := db.Exec(schema)
	return err
}

const resourceColumns = `id, project_id, path, status, chunk_count, error_kind, error, created_at, updated_at`

// CreateResource inserts r. An empty status becomes pending.
func (s *SQLiteStorage) CreateResource(ctx context.Context, r *models.Resource) error {
	if err := prepare(r); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Path, string(r.Status), r.ChunkCount, r.ErrorKind, r.Error, r.CreatedAt, r.UpdatedAt,
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", ErrExists, r.ID)
	}
	return err
}

// UpsertResource inserts r, or resets the existing row's path and status.
func (s *SQLiteStorage) UpsertResource(ctx context.Context, r *models.Resource) error {
	if err := prepare(r); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			path = excluded.path,
			status = excluded.status,
			chunk_count = 0,
			error_kind = '',
			error = '',
			updated_at = excluded.updated_at`,
		r.ID, r.ProjectID, r.Path, string(r.Status), r.ChunkCount, r.ErrorKind, r.Error, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func prepare(r *models.Resource) error {
	if r.ID == "" {
		return errors.New("resource id is required")
	}
	if err := models.ValidateProjectID(r.ProjectID); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetResource returns a resource by id.
func (s *SQLiteStorage) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// ListResources returns a project's resources, oldest first.
func (s *SQLiteStorage) ListResources(ctx context.Context, projectID string) ([]*models.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus records a processing outcome.
func (s *SQLiteStorage) UpdateStatus(ctx context.Context, id string, status models.Status, chunks int, kind, message string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET status = ?, chunk_count = ?, error_kind = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), chunks, kind, message, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// DeleteResource removes a resource from the ledger.
func (s *SQLiteStorage) DeleteResource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// CountByStatus counts resources per status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context, projectID string) (map[models.Status]int64, error) {
	query := `SELECT status, COUNT(*) FROM resources GROUP BY status`
	var args []any
	if projectID != "" {
		query = `SELECT status, COUNT(*) FROM resources WHERE project_id = ? GROUP BY status`
		args = append(args, projectID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*models.Resource, error) {
	var r models.Resource
	var status string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Path, &status, &r.ChunkCount, &r.ErrorKind, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	return &r, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
