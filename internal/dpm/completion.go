package dpm

import (
	"context"
	"sync"
)

// Completion is a reusable signal that lets dependents wait for a device's
// current phase to finish.
//
// A new Completion starts in the completed state so that waiting on a device
// that has not been scheduled in the current phase never blocks.
type Completion struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

// NewCompletion returns a completed Completion.
func NewCompletion() *Completion {
	ch := make(chan struct{})
	close(ch)
	return &Completion{ch: ch, done: true}
}

// Reinit arms the completion for a new phase. Waiters arriving after Reinit
// block until the next CompleteAll.
func (c *Completion) Reinit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		c.ch = make(chan struct{})
		c.done = false
	}
}

// CompleteAll releases every current and future waiter until the next Reinit.
func (c *Completion) CompleteAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		close(c.ch)
		c.done = true
	}
}

// Wait blocks until the completion fires or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether the completion has fired.
func (c *Completion) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
