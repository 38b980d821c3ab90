package chunks

import (
	"context"
	"sync"
)

// Load is the handle of one or more fetches. It settles exactly once, with
// the first error reported by any of the fetches it tracks.
type Load struct {
	done chan struct{}

	mu      sync.Mutex
	err     error
	settled bool
	then    []func(error)
}

func newLoad() *Load {
	return &Load{done: make(chan struct{})}
}

func settledLoad(err error) *Load {
	l := newLoad()
	l.settle(err)
	return l
}

// Done is closed once the load has settled.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Pending reports whether the load is still waiting on a fetch.
func (l *Load) Pending() bool {
	return !l.Settled()
}

// Settled reports whether every tracked fetch has completed.
func (l *Load) Settled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled
}

// Err returns the settlement error. It is nil while the load is pending.
func (l *Load) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Wait blocks until the load settles or ctx is done.
func (l *Load) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Load) settle(err error) {
	l.mu.Lock()
	if l.settled {
		l.mu.Unlock()
		return
	}
	l.settled = true
	l.err = err
	then := l.then
	l.then = nil
	l.mu.Unlock()

	close(l.done)
	for _, fn := range then {
		fn(err)
	}
}

// onSettle runs fn after settlement, immediately if already settled.
func (l *Load) onSettle(fn func(error)) {
	l.mu.Lock()
	if !l.settled {
		l.then = append(l.then, fn)
		l.mu.Unlock()
		return
	}
	err := l.err
	l.mu.Unlock()
	fn(err)
}

// joinLoads returns a load that settles when all of loads have settled.
func joinLoads(loads ...*Load) *Load {
	switch len(loads) {
	case 0:
		return settledLoad(nil)
	case 1:
		return loads[0]
	}

	joined := newLoad()
	var (
		mu        sync.Mutex
		remaining = len(loads)
		first     error
	)
	for _, l := range loads {
		l.onSettle(func(err error) {
			mu.Lock()
			if err != nil && first == nil {
				first = err
			}
			remaining--
			last := remaining == 0
			result := first
			mu.Unlock()
			if last {
				joined.settle(result)
			}
		})
	}
	return joined
}
