// Package main is the docrag CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	internalcli "github.com/hyperjump/docrag/internal/cli"
	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/fileid"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/storage"
	"github.com/hyperjump/docrag/internal/watcher"
	"github.com/hyperjump/docrag/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "~/.docrag/config.yaml"

func main() {
	_ = godotenv.Load()
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "docrag",
		Usage:   "Per-project PDF ingestion and semantic retrieval",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   defaultConfigPath,
				EnvVars: []string{"DOCRAG_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Extract, chunk and index PDF files into a project",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "resource",
						Usage: "Resource id for the chunks (single file only; default derived from the path)",
					},
					formatFlag(),
				},
			},
			{
				Name:      "query",
				Usage:     "Return the chunks most relevant to a question",
				ArgsUsage: "TEXT",
				Action:    queryCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of chunks to return (0 uses retrieval.default_k)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop chunks scoring below this similarity",
					},
					formatFlag(),
				},
			},
			{
				Name:   "remove",
				Usage:  "Remove a resource's chunks from a project",
				Action: removeCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:     "resource",
						Aliases:  []string{"r"},
						Usage:    "Resource id to remove",
						Required: true,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show project indices and resource processing status",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "project",
						Aliases: []string{"p"},
						Usage:   "Limit to one project",
					},
					formatFlag(),
				},
			},
			{
				Name:   "watch",
				Usage:  "Ingest PDFs dropped into <inbox>/<project>/ and remove deleted ones",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "inbox",
						Usage: "Inbox directory (overrides watch.inbox)",
					},
					&cli.BoolFlag{
						Name:  "sync",
						Usage: "Ingest PDFs already in the inbox on start",
						Value: true,
					},
				},
			},
			{
				Name:  "config",
				Usage: "Manage the config file",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write a config file with default values",
						Action: configInitCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
					},
				},
			},
		},
	}
}

func projectFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project id (letters, digits, '-' and '_')",
		Required: true,
	}
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: text or json",
		Value: "text",
	}
}

// loadConfig loads config from path. When path is the default and a config.yaml exists in
// the current directory, that file is used instead so development runs pick it up.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	path = expandHome(path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// setup loads config and logger and wires the engine. The returned cleanup must be called.
func setup(c *cli.Context) (*components, func(), error) {
	cfg, _, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return comps, func() {
		comps.Close()
		_ = logger.Sync()
	}, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one FILE is required")
	}
	resource := c.String("resource")
	if resource != "" && len(files) > 1 {
		return errors.New("--resource can only be used with a single file")
	}
	project := c.String("project")
	if err := models.ValidateProjectID(project); err != nil {
		return err
	}
	format, err := internalcli.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	comps, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, cancel := signalContext(c)
	defer cancel()

	ids := make([]string, 0, len(files))
	paths := make(map[string]string, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		id := resource
		if id == "" {
			id = fileid.ResourceID(project, abs)
		}
		// Re-ingesting a file replaces its earlier chunks.
		if res := comps.service.Remove(ctx, project, id); !res.OK {
			return fmt.Errorf("remove previous chunks of %s: %w", f, res.Err)
		}
		if _, err := comps.processor.Register(ctx, project, abs, id); err != nil {
			return fmt.Errorf("register %s: %w", f, err)
		}
		ids = append(ids, id)
		paths[id] = f
	}

	outcomes := comps.processor.ProcessMany(ctx, ids)
	outs := make([]internalcli.OutcomeOutput, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		outs[i] = internalcli.NewOutcomeOutput(o, paths[o.ResourceID])
		if o.Status != models.StatusComplete {
			failed++
		}
	}
	if err := internalcli.WriteOutcomes(os.Stdout, outs, format); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return errors.New("query TEXT is required")
	}
	if c.Int("k") < 0 || c.Int("k") > models.MaxK {
		return fmt.Errorf("-k must be between 0 and %d", models.MaxK)
	}
	format, err := internalcli.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	comps, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, cancel := signalContext(c)
	defer cancel()

	start := time.Now()
	q := models.Query{
		Text:      text,
		ProjectID: c.String("project"),
		K:         c.Int("k"),
		MinScore:  c.Float64("min-score"),
	}
	if q.K == 0 {
		q.K = comps.cfg.Retrieval.DefaultK
	}
	hits, err := comps.manager.Search(ctx, q)
	if err != nil {
		return err
	}
	return internalcli.WriteQuery(os.Stdout, internalcli.QueryOutput{
		Query:     text,
		ProjectID: q.ProjectID,
		Hits:      hits,
		TookMs:    time.Since(start).Milliseconds(),
	}, format)
}

func removeCommand(c *cli.Context) error {
	comps, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, cancel := signalContext(c)
	defer cancel()

	project, resource := c.String("project"), c.String("resource")
	removed, err := comps.processor.Delete(ctx, resource)
	if errors.Is(err, storage.ErrNotFound) {
		// Chunks indexed without going through the ledger.
		res := comps.service.Remove(ctx, project, resource)
		if !res.OK {
			return res.Err
		}
		removed, err = res.Removed, nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d chunks of %s from %s\n", removed, resource, project)
	return nil
}

func statusCommand(c *cli.Context) error {
	format, err := internalcli.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	comps, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := c.Context

	projects := []string{c.String("project")}
	if projects[0] == "" {
		if projects, err = comps.manager.Projects(); err != nil {
			return err
		}
	}
	out := internalcli.StatusOutput{Projects: make([]indexer.ProjectStats, 0, len(projects))}
	for _, p := range projects {
		st, err := comps.manager.Stats(ctx, p)
		if err != nil {
			comps.logger.Warn("status skipped project", zap.String("project", p), zap.Error(err))
			continue
		}
		out.Projects = append(out.Projects, st)
	}
	if out.Resources, err = comps.ledger.CountByStatus(ctx, c.String("project")); err != nil {
		return err
	}
	usage, err := storage.ProjectUsage(comps.cfg.Store.Root)
	if err != nil {
		return err
	}
	for p, n := range usage {
		if c.String("project") == "" || p == c.String("project") {
			out.DiskBytes += n
		}
	}
	return internalcli.WriteStatus(os.Stdout, out, format)
}

func watchCommand(c *cli.Context) error {
	comps, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	inbox := comps.cfg.Watch.Inbox
	if c.String("inbox") != "" {
		inbox = c.String("inbox")
	}
	if inbox == "" {
		return errors.New("no inbox configured: set watch.inbox or pass --inbox")
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	logger := utils.Component(comps.logger, "watch")
	onFile := func(project, path string) {
		out := comps.processor.Refresh(ctx, project, path, fileid.ResourceID(project, path))
		if out.Status != models.StatusComplete {
			logger.Warn("watch ingest failed",
				zap.String("project", project), zap.String("path", path),
				zap.String("kind", out.Kind.String()), zap.Error(out.Err))
			return
		}
		logger.Info("watch ingested", zap.String("project", project), zap.String("path", path), zap.Int("chunks", out.Chunks))
	}
	onRemove := func(project, path string) {
		id := fileid.ResourceID(project, path)
		removed, err := comps.processor.Delete(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("watch remove failed", zap.String("project", project), zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("watch removed", zap.String("project", project), zap.String("path", path), zap.Int("chunks", removed))
	}

	w := watcher.NewWatcher(inbox, onFile, onRemove,
		watcher.WithLogger(logger),
		watcher.WithDebounce(comps.cfg.Watch.Debounce),
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	if c.Bool("sync") {
		w.SyncExisting()
	}
	fmt.Printf("Watching %s (%d projects). Press Ctrl+C to stop.\n", inbox, len(w.Projects()))
	<-ctx.Done()
	return nil
}

func configInitCommand(c *cli.Context) error {
	path := expandHome(c.String("config"))
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
