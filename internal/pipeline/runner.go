package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrRunInProgress is returned when another run holds the local or the
// distributed run lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runnable is a single pipeline pass.
type Runnable interface {
	Run(ctx context.Context) (*Result, error)
}

// Locker is a lock shared between processes, e.g. a Redis SETNX lock.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Runner serializes runs within the process and, with a Locker, across
// processes. It keeps the latest successful result for readers.
type Runner struct {
	pass   Runnable
	lock   Locker
	logger *zap.Logger

	runMu sync.Mutex

	mu     sync.RWMutex
	latest *Result
}

// NewRunner wraps pass. lock may be nil.
func NewRunner(pass Runnable, lock Locker, logger *zap.Logger) *Runner {
	return &Runner{pass: pass, lock: lock, logger: logger.With(zap.String("component", "runner"))}
}

// Run waits for any in-process run to finish, then runs.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.run(ctx)
}

// TryRun runs only if no other run is in progress in this process.
func (r *Runner) TryRun(ctx context.Context) (*Result, error) {
	if !r.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.runMu.Unlock()
	return r.run(ctx)
}

// Latest returns the most recent successful result, or nil.
func (r *Runner) Latest() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	res, err := r.pass.Run(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.latest = res
	r.mu.Unlock()
	return res, nil
}
