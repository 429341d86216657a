// Package cancel provides the single-shot cancellation flag shared by the
// retry loop and the process launcher.
package cancel

import (
	"sync"
)

// Controller holds an idempotent, single-shot cancellation flag.
// There is no way to clear it once set.
type Controller struct {
	once sync.Once
	done chan struct{}
}

// NewController creates a controller with cancellation not yet requested
func NewController() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Request sets the cancellation flag. Safe to call any number of times
// from any goroutine; every call after the first is a no-op.
func (c *Controller) Request() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Requested reports whether cancellation has been requested, without blocking
func (c *Controller) Requested() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when cancellation is requested,
// for use in select races
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
