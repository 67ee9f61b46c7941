// Package indexer splits extracted text into chunks and manages per-project vector indices.
package indexer

import (
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/models"
)

// Chunker splits text into overlapping chunks of at most chunkSize runes, preferring
// paragraph, line and sentence boundaries.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
	logger       *zap.Logger
}

// NewChunker creates a chunker. Sizes are in runes; separators are tried in order.
func NewChunker(chunkSize, chunkOverlap int, separators []string, logger *zap.Logger) *Chunker {
	if len(separators) == 0 {
		separators = config.DefaultSeparators
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		logger: logger,
	}
}

// ChunkerFromConfig builds a Chunker from the chunking section of the config.
func ChunkerFromConfig(cfg config.ChunkingConfig, logger *zap.Logger) *Chunker {
	return NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators, logger)
}

// Chunk returns the pieces of text in order. Splitting happens when the sequence is
// ranged over, and each range starts from the beginning. Invalid UTF-8 yields nothing.
func (c *Chunker) Chunk(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !utf8.ValidString(text) {
			c.logger.Warn("chunker skipping text with invalid utf-8", zap.Int("bytes", len(text)))
			return
		}
		pieces, err := c.splitter.SplitText(Preprocess(text))
		if err != nil {
			c.logger.Warn("chunker split failed", zap.Error(err))
			return
		}
		for _, piece := range pieces {
			for part := range c.bound(piece) {
				if !yield(part) {
					return
				}
			}
		}
	}
}

// MakeChunks splits text and wraps the non-blank pieces as chunks attributed to resourceID.
func (c *Chunker) MakeChunks(text, resourceID string) []models.Chunk {
	var chunks []models.Chunk
	for piece := range c.Chunk(text) {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		i := len(chunks)
		chunks = append(chunks, models.Chunk{
			Text:       piece,
			ChunkIndex: i,
			ResourceID: resourceID,
			SourceTag:  models.SourceTag(i),
		})
	}
	return chunks
}

// bound hard-splits a piece the recursive splitter left longer than chunkSize, stepping
// by chunkSize-chunkOverlap runes.
func (c *Chunker) bound(piece string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if utf8.RuneCountInString(piece) <= c.chunkSize {
			yield(piece)
			return
		}
		runes := []rune(piece)
		step := c.chunkSize - c.chunkOverlap
		for start := 0; start < len(runes); start += step {
			end := min(start+c.chunkSize, len(runes))
			if !yield(string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}
