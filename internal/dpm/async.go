package dpm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// asyncRunner executes device work off the driving goroutine and provides a
// barrier over everything submitted since the last Wait.
type asyncRunner struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	logger Logger
}

func newAsyncRunner(workers int, logger Logger) (*asyncRunner, error) {
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		// A faulting callback is fatal on the synchronous path as well.
		ants.WithPanicHandler(func(p any) { panic(p) }),
	)
	if err != nil {
		return nil, fmt.Errorf("creating async pool: %w", err)
	}
	return &asyncRunner{pool: pool, logger: logger}, nil
}

// Go schedules fn. When every pool worker is busy fn gets its own goroutine:
// a parent blocked on its children's completions must never keep those
// children from being scheduled.
func (a *asyncRunner) Go(fn func()) {
	a.wg.Add(1)
	task := func() {
		defer a.wg.Done()
		fn()
	}
	if err := a.pool.Submit(task); err != nil {
		if !errors.Is(err, ants.ErrPoolOverload) && !errors.Is(err, ants.ErrPoolClosed) {
			a.logger.Warn("async submit failed", "error", err)
		}
		go task()
	}
}

// Wait blocks until all scheduled work has finished.
func (a *asyncRunner) Wait() {
	a.wg.Wait()
}

func (a *asyncRunner) Release() {
	a.pool.Release()
}

// errorSlot keeps the first error reported during a phase.
type errorSlot struct {
	mu  sync.Mutex
	err error
}

// set records err unless an error is already stored.
func (s *errorSlot) set(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *errorSlot) get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *errorSlot) reset() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
