package pool

import (
	"context"
	"sync"
	"time"
)

// gate is the admission gate of a strict pool. It has no lock of its own:
// every method must be called with the owning pool's mutex held, which is
// what makes "observe exhausted, then wait" atomic with respect to signal.
//
// Waiters park on a channel snapshotted under the lock. signal closes that
// channel, waking every waiter, and the next waiter allocates a fresh one.
// Waking is a hint only; callers re-check the pool after await returns.
type gate struct {
	ch      chan struct{}
	waiters int
}

// await releases mu and blocks until signal, the deadline or ctx.Done,
// then re-acquires mu. The waiter is always removed from the wait set
// before await returns.
func (g *gate) await(ctx context.Context, mu *sync.Mutex, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}
	if g.ch == nil {
		g.ch = make(chan struct{})
	}
	ch := g.ch
	g.waiters++
	mu.Unlock()

	timer := time.NewTimer(remaining)
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
	timer.Stop()

	mu.Lock()
	g.waiters--
}

// signal wakes every current waiter.
func (g *gate) signal() {
	if g.waiters == 0 || g.ch == nil {
		return
	}
	close(g.ch)
	g.ch = nil
}
