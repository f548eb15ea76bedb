// Package asyncutil provides the async substrate every other gridmux
// component is built on: task spawning tied to a lifetime, cancellable
// timers, and a bounded offload pool for blocking I/O. It wraps safego so
// that every spawned goroutine is panic-safe and logged, the way the
// teacher's own background work is started.
package asyncutil

import (
	"context"
	"sync"
	"time"

	"github.com/andyrewlee/gridmux/internal/safego"
)

// Group ties a set of spawned tasks to a single cancellable lifetime, the
// way a workspace's background work should all stop together when the
// workspace closes. The zero value is not usable; use NewGroup.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup creates a task group derived from parent. Cancelling parent, or
// calling Close, stops every task spawned through the group at its next
// suspension point.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the group's context. Tasks should select on Done() to
// notice cancellation.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go spawns fn in a panic-safe goroutine tracked by the group. fn should
// return promptly once ctx is done.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	safego.Go(name, func() {
		defer g.wg.Done()
		fn(g.ctx)
	})
}

// Close cancels every task in the group and blocks until they have all
// returned.
func (g *Group) Close() {
	g.cancel()
	g.wg.Wait()
}

// Timer fires fn after d, unless cancelled first. It is a thin wrapper
// around time.AfterFunc that integrates with the group's lifetime: the
// group's cancellation also stops the timer.
type Timer struct {
	t      *time.Timer
	cancel context.CancelFunc
}

// AfterFunc schedules fn to run once after d, in a panic-safe goroutine.
// Calling Stop before it fires prevents fn from running.
func (g *Group) AfterFunc(name string, d time.Duration, fn func()) *Timer {
	ctx, cancel := context.WithCancel(g.ctx)
	timer := time.AfterFunc(d, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		safego.Run(name, fn)
	})
	return &Timer{t: timer, cancel: cancel}
}

// Stop cancels the timer. Safe to call more than once or after it fired.
func (tm *Timer) Stop() {
	tm.cancel()
	tm.t.Stop()
}

// Ticker fires fn every d until Stop is called or the owning group closes.
type Ticker struct {
	stop func()
}

// NewTicker schedules fn to run periodically every d, in a panic-safe
// goroutine, until the group is closed or Stop is called.
func (g *Group) NewTicker(name string, d time.Duration, fn func()) *Ticker {
	ctx, cancel := context.WithCancel(g.ctx)
	g.wg.Add(1)
	safego.Go(name, func() {
		defer g.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				safego.Run(name, fn)
			}
		}
	})
	return &Ticker{stop: cancel}
}

// Stop halts the ticker.
func (tk *Ticker) Stop() {
	tk.stop()
}
