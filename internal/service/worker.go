package service

import (
	"context"
	"sync"
	"time"

	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/repository"
)

type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Status is the last known state of a hosted repository.
type Status struct {
	State   State
	Message string
	Updated time.Time
}

// worker owns the lifecycle of one hosted repository. Repositories without
// local state are ready as soon as they are built.
type worker struct {
	name   string
	repo   repository.Repository
	log    *logging.Logger
	mu     sync.Mutex
	status Status
}

func newWorker(name string, repo repository.Repository, logger *logging.Logger) *worker {
	return &worker{name: name, repo: repo, log: logger}
}

func (w *worker) Init(ctx context.Context) error {
	lc, ok := w.repo.(repository.Lifecycle)
	if !ok {
		w.report(StateReady, nil)
		return nil
	}

	startTime := time.Now()
	if err := lc.Init(ctx); err != nil {
		w.log.Warnf("failed to initialize repository %q: %v", w.name, err)
		w.report(StateFailed, err)
		return err
	}

	w.log.Infof("repository %q initialized in %v", w.name, time.Since(startTime).Round(time.Millisecond))
	w.report(StateReady, nil)
	return nil
}

func (w *worker) Close() error {
	defer w.report(StateClosed, nil)

	if lc, ok := w.repo.(repository.Lifecycle); ok {
		return lc.Close()
	}
	return nil
}

func (w *worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *worker) report(state State, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.State = state
	w.status.Message = ""
	if err != nil {
		w.status.Message = err.Error()
	}
	w.status.Updated = time.Now()
}
