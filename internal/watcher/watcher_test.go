package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	files   []string
	removed []string
}

func (r *recorder) onFile(project, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, project+":"+filepath.Base(path))
}

func (r *recorder) onRemove(project, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, project+":"+filepath.Base(path))
}

func (r *recorder) snapshot() (files, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...), append([]string(nil), r.removed...)
}

func startWatcher(t *testing.T, inbox string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(inbox, rec.onFile, rec.onRemove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_createsInboxAndWatchesProjects(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(filepath.Join(inbox, "acme"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(inbox, "bad name"), 0755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, inbox, &recorder{})
	if got := w.Projects(); len(got) != 1 || got[0] != "acme" {
		t.Errorf("Projects() = %v", got)
	}
}

func TestWatcher_debouncedPDFEvents(t *testing.T) {
	inbox := t.TempDir()
	project := filepath.Join(inbox, "acme")
	if err := os.MkdirAll(project, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, inbox, rec)

	path := filepath.Join(project, "report.pdf")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("%PDF-1.4 partial"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(project, "notes.txt"), []byte("skip"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		files, _ := rec.snapshot()
		return len(files) >= 1
	})
	time.Sleep(150 * time.Millisecond)
	files, _ := rec.snapshot()
	if len(files) != 1 || files[0] != "acme:report.pdf" {
		t.Errorf("files = %v, want one debounced acme:report.pdf", files)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := rec.snapshot()
		return len(removed) == 1 && removed[0] == "acme:report.pdf"
	})
}

func TestWatcher_newProjectDirectorySyncs(t *testing.T) {
	inbox := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, inbox, rec)

	project := filepath.Join(inbox, "newproj")
	if err := os.MkdirAll(project, 0755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(w.Projects()) == 1 })
	if err := os.WriteFile(filepath.Join(project, "a.PDF"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		files, _ := rec.snapshot()
		for _, f := range files {
			if f == "newproj:a.PDF" {
				return true
			}
		}
		return false
	})
}

func TestWatcher_SyncExisting(t *testing.T) {
	inbox := t.TempDir()
	for _, p := range []string{"p1/one.pdf", "p1/skip.docx", "p2/two.pdf"} {
		full := filepath.Join(inbox, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	w := startWatcher(t, inbox, rec)
	w.SyncExisting()

	files, _ := rec.snapshot()
	if len(files) != 2 || files[0] != "p1:one.pdf" || files[1] != "p2:two.pdf" {
		t.Errorf("files = %v", files)
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b.pdf", true},
		{"/a/b.PDF", true},
		{"/a/b.pdf.txt", false},
		{"/a/pdf", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.path); got != tt.want {
			t.Errorf("isPDF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
