package asyncutil

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Pool bounds how many blocking tasks (PTY reads, disk I/O) run at once.
// It starts no goroutines of its own: each task runs on the goroutine that
// submitted it, once a slot is free.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool that runs at most concurrency blocking tasks at
// once.
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{sem: make(chan struct{}, concurrency)}
}

// Submit blocks the caller until a slot is free or ctx is cancelled, then
// runs fn on the caller's goroutine. The error from fn (or ctx.Err()) is
// returned.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn(ctx)
}

// BoundedErrGroup starts a bounded set of tasks concurrently via errgroup,
// propagating the first error and cancelling the rest. Named distinctly
// from the Group type above: this wraps golang.org/x/sync/errgroup for
// fan-out-and-join work, while Group is this package's own supervisor for
// long-lived background goroutines.
func BoundedErrGroup(ctx context.Context, limit int) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return g, gctx
}

// StateCoalescer collapses concurrent callers of the same key into a single
// in-flight call, used to coalesce concurrent GET /v1/state requests against
// the single-writer workspace bridge.
type StateCoalescer struct {
	group singleflight.Group
}

// Do executes fn for key, or waits for and shares the result of an
// in-flight call for the same key.
func (c *StateCoalescer) Do(key string, fn func() (any, error)) (any, error, bool) {
	return c.group.Do(key, fn)
}
