// Package tasks runs resource ingestion jobs against the ledger and the retrieval service.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/failure"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/retrieval"
	"github.com/hyperjump/docrag/internal/storage"
)

// Ingester is the part of retrieval.Service the processor drives.
type Ingester interface {
	Ingest(ctx context.Context, req retrieval.IngestRequest) retrieval.IngestResult
	Remove(ctx context.Context, projectID, resourceID string) retrieval.RemoveResult
}

// Outcome is the result of processing one resource.
type Outcome struct {
	ResourceID string
	Status     models.Status
	Chunks     int
	Kind       failure.Kind
	Err        error
}

// Processor moves resources through pending, processing, and complete or failed.
type Processor struct {
	store  storage.ResourceStore
	svc    Ingester
	pool   *ants.Pool
	logger *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// New creates a processor whose batch runs use at most poolSize goroutines.
func New(store storage.ResourceStore, svc Ingester, poolSize int, opts ...Option) (*Processor, error) {
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p := &Processor{store: store, svc: svc, pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// Register records a pending resource for path in project. An empty resourceID gets a
// random one. Registering an existing id resets it to pending.
func (p *Processor) Register(ctx context.Context, projectID, path, resourceID string) (*models.Resource, error) {
	if resourceID == "" {
		resourceID = uuid.NewString()
	}
	r := &models.Resource{ID: resourceID, ProjectID: projectID, Path: path, Status: models.StatusPending}
	if err := p.store.UpsertResource(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Process ingests one resource and records the outcome in the ledger. A document that
// yields no chunks is marked failed.
func (p *Processor) Process(ctx context.Context, resourceID string) Outcome {
	out := Outcome{ResourceID: resourceID, Status: models.StatusFailed}
	r, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		p.logger.Error("tasks resource lookup failed", zap.String("resource", resourceID), zap.Error(err))
		out.Kind, out.Err = failure.InvalidInput, err
		return out
	}
	if err := p.store.UpdateStatus(ctx, r.ID, models.StatusProcessing, 0, "", ""); err != nil {
		out.Kind, out.Err = failure.Internal, err
		return out
	}

	res := p.svc.Ingest(ctx, retrieval.IngestRequest{Path: r.Path, ProjectID: r.ProjectID, ResourceID: r.ID})
	switch {
	case !res.OK:
		out.Kind, out.Err = res.Kind, res.Err
	case len(res.Chunks) == 0:
		out.Kind = res.Extraction.Kind
		if out.Kind == failure.None {
			out.Kind = failure.NoDocuments
		}
		out.Err = errors.New("no text could be extracted")
	default:
		out.Status = models.StatusComplete
		out.Chunks = len(res.Chunks)
	}

	var message string
	if out.Err != nil {
		message = out.Err.Error()
	}
	kind := ""
	if out.Kind != failure.None {
		kind = string(out.Kind)
	}
	if err := p.store.UpdateStatus(context.WithoutCancel(ctx), r.ID, out.Status, out.Chunks, kind, message); err != nil {
		p.logger.Error("tasks status update failed", zap.String("resource", r.ID), zap.Error(err))
	}

	if out.Status == models.StatusComplete {
		p.logger.Info("tasks processed resource",
			zap.String("resource", r.ID), zap.String("project", r.ProjectID), zap.Int("chunks", out.Chunks))
	} else {
		p.logger.Error("tasks resource failed",
			zap.String("resource", r.ID), zap.String("project", r.ProjectID),
			zap.String("kind", out.Kind.String()), zap.Error(out.Err))
	}
	return out
}

// ProcessMany processes resources concurrently on the worker pool. Outcomes are
// returned in the order of ids.
func (p *Processor) ProcessMany(ctx context.Context, ids []string) []Outcome {
	outcomes := make([]Outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = p.Process(ctx, id)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = Outcome{ResourceID: id, Status: models.StatusFailed, Kind: failure.Internal, Err: err}
		}
	}
	wg.Wait()
	return outcomes
}

// Refresh re-ingests path under resourceID. Chunks from an earlier version of the file
// are removed first so a changed file replaces its content instead of adding to it.
func (p *Processor) Refresh(ctx context.Context, projectID, path, resourceID string) Outcome {
	if res := p.svc.Remove(ctx, projectID, resourceID); !res.OK {
		return Outcome{ResourceID: resourceID, Status: models.StatusFailed, Kind: res.Kind, Err: res.Err}
	}
	if _, err := p.Register(ctx, projectID, path, resourceID); err != nil {
		return Outcome{ResourceID: resourceID, Status: models.StatusFailed, Kind: failure.InvalidInput, Err: err}
	}
	return p.Process(ctx, resourceID)
}

// Delete removes the resource's chunks from its project index, then drops it from the
// ledger. The ledger row is kept if the index removal fails so it can be retried.
func (p *Processor) Delete(ctx context.Context, resourceID string) (int, error) {
	r, err := p.store.GetResource(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	res := p.svc.Remove(ctx, r.ProjectID, r.ID)
	if !res.OK {
		return 0, res.Err
	}
	if err := p.store.DeleteResource(ctx, r.ID); err != nil {
		return res.Removed, err
	}
	p.logger.Info("tasks deleted resource",
		zap.String("resource", r.ID), zap.String("project", r.ProjectID), zap.Int("chunks", res.Removed))
	return res.Removed, nil
}

// Release stops the worker pool.
func (p *Processor) Release() {
	p.pool.Release()
}
