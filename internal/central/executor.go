package central

import (
	"context"
	"errors"
	"runtime/pprof"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrExecutorClosed reports a spawn attempt after the executor stopped
// accepting work.
var ErrExecutorClosed = errors.New("executor closed")

// Executor is the shared execution context of a module: every asynchronous
// unit of work a module or one of its peripherals schedules runs on it.
// Goroutines are labeled for pprof so concurrent operations can be told
// apart in profiles.
type Executor struct {
	root   context.Context
	cancel context.CancelFunc
	logger *logrus.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewExecutor creates a running executor.
func NewExecutor(logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{root: ctx, cancel: cancel, logger: logger}
}

// Spawn schedules fn on its own goroutine and returns immediately. The
// context it receives is the executor's root context: it is NOT cancelled by
// Close, so accepted operations run to completion and their completion
// callbacks still fire after the owning handle is released.
func (e *Executor) Spawn(name string, fn func(ctx context.Context)) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	e.wg.Add(1)
	go pprof.Do(e.root, pprof.Labels("task", name), func(ctx context.Context) {
		defer e.wg.Done()
		fn(ctx)
	})
	return nil
}

// Close stops accepting new work without cancelling in-flight work.
func (e *Executor) Close() {
	e.closed.Store(true)
}

// Shutdown closes the executor and waits for in-flight work to finish, or
// for ctx to expire, whichever comes first. The root context is cancelled
// once waiting ends so stragglers observe cancellation.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.closed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wg.Wait()
	}()
	defer e.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
