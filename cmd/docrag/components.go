package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/embedding"
	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/retrieval"
	"github.com/hyperjump/docrag/internal/storage"
	"github.com/hyperjump/docrag/internal/tasks"
	"github.com/hyperjump/docrag/pkg/utils"
)

// components is the wired engine shared by every command.
type components struct {
	cfg       *config.Config
	logger    *zap.Logger
	embedder  embedding.Embedder
	manager   *indexer.Manager
	service   *retrieval.Service
	ledger    *storage.SQLiteStorage
	processor *tasks.Processor
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	embedder, err := embedding.FromConfig(cfg.Embedding, utils.Component(logger, "embedding"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	c.embedder = embedder

	manager, err := indexer.FromConfig(cfg, embedder, utils.Component(logger, "indexer"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	c.manager = manager

	c.service = retrieval.New(
		extract.FromConfig(cfg.Extract, utils.Component(logger, "extract")),
		indexer.ChunkerFromConfig(cfg.Chunking, utils.Component(logger, "chunker")),
		manager,
		retrieval.WithLogger(utils.Component(logger, "retrieval")),
	)

	ledger, err := storage.NewSQLiteStorage(cfg.Store.LedgerPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	c.ledger = ledger

	processor, err := tasks.New(ledger, c.service, cfg.Workers.PoolSize, tasks.WithLogger(utils.Component(logger, "tasks")))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	c.processor = processor
	return c, nil
}

// Close releases everything initializeComponents opened, in reverse order.
func (c *components) Close() {
	if c.processor != nil {
		c.processor.Release()
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			c.logger.Warn("close ledger", zap.Error(err))
		}
	}
	if c.manager != nil {
		_ = c.manager.Close()
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			c.logger.Warn("close embedder", zap.Error(err))
		}
	}
}
