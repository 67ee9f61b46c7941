package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 20 * time.Millisecond

// projectLocks serializes writers per project: first within the process, then across
// processes sharing the store root through an advisory file lock.
type projectLocks struct {
	mu   sync.Mutex
	held map[string]*projectLock
	path func(project string) string
}

type projectLock struct {
	sem  chan struct{}
	refs int
}

func newProjectLocks(path func(project string) string) *projectLocks {
	return &projectLocks{held: make(map[string]*projectLock), path: path}
}

// acquire blocks until the caller holds the project's lock or ctx is done.
// The returned func releases it and must be called exactly once.
func (l *projectLocks) acquire(ctx context.Context, project string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.held[project]
	if !ok {
		pl = &projectLock{sem: make(chan struct{}, 1)}
		l.held[project] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(project, pl)
		return nil, ctx.Err()
	}

	fl := flock.New(l.path(project))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-pl.sem
		l.unref(project, pl)
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock project %s: %w", project, err)
	}

	return func() {
		_ = fl.Unlock()
		<-pl.sem
		l.unref(project, pl)
	}, nil
}

func (l *projectLocks) unref(project string, pl *projectLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.held, project)
	}
}
