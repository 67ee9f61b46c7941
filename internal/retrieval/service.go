// Package retrieval is the entry point for ingesting PDFs into a project and querying it.
// Every operation returns a structured result instead of panicking or failing silently.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/failure"
	"github.com/hyperjump/docrag/internal/models"
)

// Extractor turns a document into text and reports how.
type Extractor interface {
	Diagnose(ctx context.Context, path string) extract.Extraction
}

// Splitter turns text into chunks attributed to a resource.
type Splitter interface {
	MakeChunks(text, resourceID string) []models.Chunk
}

// Index stores chunks per project and answers similarity queries.
type Index interface {
	SaveOrUpdate(ctx context.Context, chunks []models.Chunk, project string) error
	Search(ctx context.Context, q models.Query) ([]models.Hit, error)
	RemoveResource(ctx context.Context, project, resourceID string) (int, error)
}

// Result is the outcome shared by all operations. Kind is failure.None when OK.
type Result struct {
	OK        bool         `json:"ok"`
	Kind      failure.Kind `json:"kind,omitempty"`
	Err       error        `json:"-"`
	Retryable bool         `json:"retryable,omitempty"`
}

// Error returns the error message, or "" when the operation succeeded.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func resultOf(err error) Result {
	if err == nil {
		return Result{OK: true}
	}
	return Result{Kind: failure.KindOf(err), Err: err, Retryable: failure.IsRetryable(err)}
}

// IngestRequest names a file to ingest into a project. ResourceID attributes the chunks
// so they can be removed later; it may be empty.
type IngestRequest struct {
	Path       string
	ProjectID  string
	ResourceID string
}

// IngestResult carries the chunks that were indexed. An OK result with no chunks means
// the document had no extractable text.
type IngestResult struct {
	Result
	Chunks     []models.Chunk
	Extraction extract.Extraction
}

// QueryResult carries the matched chunks, most relevant first. Empty is a valid answer.
type QueryResult struct {
	Result
	Chunks []models.Chunk
	Hits   []models.Hit
}

// RemoveResult reports how many chunks a removal deleted.
type RemoveResult struct {
	Result
	Removed int
}

// Service composes extraction, chunking and the project index.
type Service struct {
	extractor Extractor
	splitter  Splitter
	index     Index
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a Service over the given components.
func New(extractor Extractor, splitter Splitter, index Index, opts ...Option) *Service {
	s := &Service{extractor: extractor, splitter: splitter, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Ingest extracts, chunks and indexes the file in req.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (out IngestResult) {
	defer s.guard("ingest", req.ProjectID, &out.Result)

	if err := models.ValidateProjectID(req.ProjectID); err != nil {
		out.Result = resultOf(failure.New(failure.InvalidInput, "ingest", req.ProjectID, err))
		return out
	}
	if strings.TrimSpace(req.Path) == "" {
		out.Result = resultOf(failure.New(failure.InvalidInput, "ingest", req.ProjectID, errors.New("empty path")))
		return out
	}

	out.Extraction = s.extractor.Diagnose(ctx, req.Path)
	if out.Extraction.Text == "" {
		s.logger.Info("retrieval ingest found no text",
			zap.String("project", req.ProjectID),
			zap.String("path", req.Path),
			zap.String("kind", out.Extraction.Kind.String()))
		out.Result = Result{OK: true}
		return out
	}

	chunks := s.splitter.MakeChunks(out.Extraction.Text, req.ResourceID)
	if len(chunks) == 0 {
		out.Result = resultOf(failure.New(failure.ChunkingFailure, "ingest", req.ProjectID,
			errors.New("extracted text produced no chunks")))
		return out
	}
	if err := s.index.SaveOrUpdate(ctx, chunks, req.ProjectID); err != nil {
		out.Result = resultOf(err)
		return out
	}
	s.logger.Info("retrieval ingested document",
		zap.String("project", req.ProjectID),
		zap.String("resource", req.ResourceID),
		zap.String("method", string(out.Extraction.Method)),
		zap.Int("chunks", len(chunks)))
	out.Result = Result{OK: true}
	out.Chunks = chunks
	return out
}

// Index stores already-chunked text in the project.
func (s *Service) Index(ctx context.Context, chunks []models.Chunk, projectID string) (out Result) {
	defer s.guard("index", projectID, &out)
	return resultOf(s.index.SaveOrUpdate(ctx, chunks, projectID))
}

// Query returns up to k chunks relevant to text. k <= 0 uses the configured default.
func (s *Service) Query(ctx context.Context, text, projectID string, k int) (out QueryResult) {
	defer s.guard("query", projectID, &out.Result)

	if strings.TrimSpace(text) == "" {
		out.Result = resultOf(failure.New(failure.InvalidInput, "query", projectID, errors.New("empty query")))
		return out
	}
	hits, err := s.index.Search(ctx, models.Query{Text: text, ProjectID: projectID, K: k})
	if err != nil {
		out.Result = resultOf(err)
		return out
	}
	out.Result = Result{OK: true}
	out.Hits = hits
	out.Chunks = models.Chunks(hits)
	return out
}

// Remove deletes the resource's chunks from the project's index.
func (s *Service) Remove(ctx context.Context, projectID, resourceID string) (out RemoveResult) {
	defer s.guard("remove", projectID, &out.Result)

	n, err := s.index.RemoveResource(ctx, projectID, resourceID)
	out.Result = resultOf(err)
	out.Removed = n
	return out
}

func (s *Service) guard(op, project string, res *Result) {
	if r := recover(); r != nil {
		s.logger.Error("retrieval recovered panic",
			zap.String("op", op), zap.String("project", project), zap.Any("panic", r))
		*res = resultOf(failure.New(failure.Internal, op, project, fmt.Errorf("panic: %v", r)))
	}
}
