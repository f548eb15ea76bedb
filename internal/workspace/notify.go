package workspace

import (
	"context"
	"sync"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
)

// notifier implements an observer protocol for an entity graph that has
// no native change-notification mechanism: a monotonic state_version
// bumped on every mutation, with exactly one callback invocation per batch
// of mutations. Go has no microtask queue to hang "one notification per
// event loop turn" off of, so this uses the same coalescing-signal idiom
// as a broadcast channel: a capacity-1 signal channel drained by a single
// dedicated goroutine, so any number of Bump calls between two drains
// collapse into one observer callback carrying the latest version.
type notifier struct {
	mu      sync.Mutex
	version uint64
	subs    map[int]func(version uint64)
	nextSub int

	signal chan struct{}
	group  *asyncutil.Group
}

func newNotifier(group *asyncutil.Group) *notifier {
	n := &notifier{
		subs:   make(map[int]func(version uint64)),
		signal: make(chan struct{}, 1),
		group:  group,
	}
	group.Go("workspace-notify", n.run)
	return n
}

func (n *notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.signal:
			n.mu.Lock()
			v := n.version
			subs := make([]func(uint64), 0, len(n.subs))
			for _, fn := range n.subs {
				subs = append(subs, fn)
			}
			n.mu.Unlock()
			for _, fn := range subs {
				fn(v)
			}
		}
	}
}

// Bump increments the version and schedules a coalesced notification.
func (n *notifier) Bump() uint64 {
	n.mu.Lock()
	n.version++
	v := n.version
	n.mu.Unlock()

	select {
	case n.signal <- struct{}{}:
	default:
	}
	return v
}

// Version returns the current state_version without scheduling anything.
func (n *notifier) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Subscribe registers fn to be called (on the notifier's dedicated
// goroutine) after a coalesced batch of mutations. The returned func
// unsubscribes.
func (n *notifier) Subscribe(fn func(version uint64)) func() {
	n.mu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}
