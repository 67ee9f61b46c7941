// Package storage keeps the resource ledger: which files were ingested into which
// project, and how their processing went.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/docrag/internal/models"
)

var (
	// ErrNotFound is returned when a resource id is not in the ledger.
	ErrNotFound = errors.New("resource not found")
	// ErrExists is returned by CreateResource for a duplicate id.
	ErrExists = errors.New("resource already exists")
)

// ResourceStore persists resource records.
type ResourceStore interface {
	CreateResource(ctx context.Context, r *models.Resource) error
	// UpsertResource creates the resource or resets an existing one to pending with a new path.
	UpsertResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	ListResources(ctx context.Context, projectID string) ([]*models.Resource, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, chunks int, kind, message string) error
	DeleteResource(ctx context.Context, id string) error
	// CountByStatus counts resources per status, for one project or all when projectID is "".
	CountByStatus(ctx context.Context, projectID string) (map[models.Status]int64, error)
	Close() error
}
