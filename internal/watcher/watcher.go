// Package watcher watches an inbox directory laid out as <inbox>/<project_id>/*.pdf and
// reports added, changed and removed documents per project.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives inbox events. Calls for one path are never concurrent with each other.
type Handler func(projectID, path string)

// Watcher watches the inbox root and one level of project directories below it.
type Watcher struct {
	inbox    string
	onFile   Handler
	onRemove Handler
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	projects map[string]bool
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onFile fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for inbox. onFile fires for new or changed PDFs once
// writes settle; onRemove fires when a PDF is deleted or moved away.
func NewWatcher(inbox string, onFile, onRemove Handler, opts ...Option) *Watcher {
	w := &Watcher{
		inbox:    filepath.Clean(inbox),
		onFile:   onFile,
		onRemove: onRemove,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
		projects: make(map[string]bool),
		done:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start creates the inbox if needed and starts watching. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.inbox); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.started = true

	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		_ = fw.Close()
		w.watcher, w.started = nil, false
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchProjectLocked(e.Name())
		}
	}
	w.logger.Debug("watcher started", zap.String("inbox", w.inbox), zap.Int("projects", len(w.projects)))
	go w.run(ctx, fw.Events, fw.Errors)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	parent := filepath.Dir(path)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if parent == w.inbox {
		name := filepath.Base(path)
		switch {
		case ev.Has(fsnotify.Create):
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				w.mu.Lock()
				added := w.watchProjectLocked(name)
				w.mu.Unlock()
				if added {
					w.syncProject(name)
				}
			}
		case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
			w.mu.Lock()
			delete(w.projects, name)
			w.mu.Unlock()
		}
		return
	}

	if filepath.Dir(parent) != w.inbox || !isPDF(path) {
		return
	}
	project := filepath.Base(parent)
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(project, path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.onRemove != nil {
			w.onRemove(project, path)
		}
	}
}

// watchProjectLocked adds the project directory to the watch list. Names that are not
// valid project ids are ignored.
func (w *Watcher) watchProjectLocked(name string) bool {
	if w.projects[name] {
		return false
	}
	if err := models.ValidateProjectID(name); err != nil {
		w.logger.Warn("watcher ignoring directory", zap.String("name", name), zap.Error(err))
		return false
	}
	if err := w.watcher.Add(filepath.Join(w.inbox, name)); err != nil {
		w.logger.Warn("watcher failed to add project", zap.String("project", name), zap.Error(err))
		return false
	}
	w.projects[name] = true
	return true
}

func (w *Watcher) schedule(project, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.logger.Debug("watcher file settled", zap.String("project", project), zap.String("path", path))
		if w.onFile != nil {
			w.onFile(project, path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) syncProject(project string) {
	matches, _ := filepath.Glob(filepath.Join(w.inbox, project, "*"))
	sort.Strings(matches)
	for _, path := range matches {
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() || !isPDF(path) {
			continue
		}
		if w.onFile != nil {
			w.onFile(project, path)
		}
	}
}

// SyncExisting reports every PDF already in the inbox to onFile. Call it after Start to
// pick up files dropped while the watcher was not running.
func (w *Watcher) SyncExisting() {
	for _, project := range w.Projects() {
		w.syncProject(project)
	}
}

// Projects returns the project directories currently watched, sorted.
func (w *Watcher) Projects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.projects))
	for p := range w.projects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Stop stops the watcher and drops pending events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
