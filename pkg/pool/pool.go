package pool

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/beanpool/pkg/errors"
)

// Reason tells why the pool refused or evicted an entry.
type Reason string

const (
	// ReasonFull means a non-strict pool already holds Capacity idle entries
	ReasonFull Reason = "full"
	// ReasonIdle means the entry sat idle longer than IdleTimeout
	ReasonIdle Reason = "idle"
	// ReasonAged means the entry is older than MaxAge
	ReasonAged Reason = "aged"
	// ReasonFlushed means the entry predates the last Flush
	ReasonFlushed Reason = "flushed"
	// ReasonClosed means the pool is closed
	ReasonClosed Reason = "closed"
)

// Wait results reported to Options.OnWait.
const (
	WaitAcquired  = "acquired"
	WaitTimeout   = "timeout"
	WaitCancelled = "cancelled"
	WaitClosed    = "closed"
)

// Options configures a Pool.
type Options struct {
	// Name labels errors, usually the deployment identifier
	Name string
	// Capacity is the hard live ceiling (Strict) or the idle ceiling
	Capacity int
	// MinSize entries are exempt from idle eviction
	MinSize int
	// Strict enables the admission gate
	Strict bool
	// IdleTimeout evicts entries unused for longer (0 = never)
	IdleTimeout time.Duration
	// MaxAge evicts entries older than this (0 = never)
	MaxAge time.Duration
	// Clock returns the current time for ageing; defaults to time.Now
	Clock func() time.Time
	// OnWait, when set, is called outside the lock after every blocked
	// Checkout with the caller's context, the time spent waiting and one of
	// the Wait* results
	OnWait func(ctx context.Context, waited time.Duration, result string)
}

// Eviction is an entry removed by Sweep or Close; the caller destroys it.
type Eviction[T any] struct {
	Entry  *Entry[T]
	Reason Reason
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Capacity       int    `json:"capacity"`
	MinSize        int    `json:"min_size"`
	Strict         bool   `json:"strict"`
	Closed         bool   `json:"closed"`
	Live           int    `json:"live"`
	Idle           int    `json:"idle"`
	Active         int    `json:"active"`
	Waiting        int    `json:"waiting"`
	Version        uint64 `json:"version"`
	Hits           int64  `json:"hits"`
	Reservations   int64  `json:"reservations"`
	AccessTimeouts int64  `json:"access_timeouts"`
	Refused        int64  `json:"refused"`
	Discards       int64  `json:"discards"`
	Sweeps         int64  `json:"sweeps"`
	Flushes        int64  `json:"flushes"`
	Evicted        int64  `json:"evicted"`
}

// Pool is a bounded LIFO pool of T. It is safe for concurrent use.
type Pool[T any] struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	idle    []*Entry[T] // top of stack is the most recently returned entry
	live    int         // idle + checked out + reserved for construction
	version uint64
	closed  bool
	drained chan struct{} // created by Close, closed once live reaches 0
	gate    gate

	hits, reservations, accessTimeouts int64
	refused, discards                  int64
	sweeps, flushes, evicted           int64
}

// New creates a pool. Negative sizes are treated as zero.
func New[T any](opts Options) *Pool[T] {
	if opts.Capacity < 0 {
		opts.Capacity = 0
	}
	if opts.MinSize < 0 {
		opts.MinSize = 0
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Pool[T]{
		opts: opts,
		now:  now,
		idle: make([]*Entry[T], 0, opts.Capacity),
	}
}

// Capacity returns the configured capacity.
func (p *Pool[T]) Capacity() int {
	return p.opts.Capacity
}

// Strict reports whether the pool enforces its capacity with the gate.
func (p *Pool[T]) Strict() bool {
	return p.opts.Strict
}

// TryTakeIdle pops the most recently returned idle entry. It never blocks.
func (p *Pool[T]) TryTakeIdle() (*Entry[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	e := p.popLocked()
	if e != nil {
		p.hits++
	}
	return e, e != nil
}

// RecordNewLive counts a value constructed outside Checkout as live. Under
// strict pooling the caller must have checked capacity first; TryReserve
// does both atomically.
func (p *Pool[T]) RecordNewLive() {
	p.mu.Lock()
	p.live++
	p.reservations++
	p.mu.Unlock()
}

// TryReserve reserves a construction slot without blocking. It fails on a
// closed pool and on a strict pool at capacity.
func (p *Pool[T]) TryReserve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || (p.opts.Strict && p.live >= p.opts.Capacity) {
		return false
	}
	p.live++
	p.reservations++
	return true
}

// Add puts a freshly constructed value straight onto the idle stack, used to
// prefill a pool. It returns false, leaving the value to the caller, when the
// pool is closed or already at capacity.
func (p *Pool[T]) Add(value T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.live >= p.opts.Capacity {
		return false
	}
	now := p.now()
	p.idle = append(p.idle, &Entry[T]{value: value, created: now, used: now, version: p.version})
	p.live++
	p.reservations++
	p.gate.signal()
	return true
}

// Checkout runs the admission state machine. It returns an idle entry, or
// reserved == true when the caller holds a fresh slot and must Commit a new
// value or Discard the slot. A strict pool at capacity blocks until an entry
// is returned or discarded, the timeout elapses or ctx is done. A
// non-positive timeout never blocks.
func (p *Pool[T]) Checkout(ctx context.Context, timeout time.Duration) (entry *Entry[T], reserved bool, err error) {
	deadline := time.Now().Add(timeout)
	var waitStart time.Time

	p.mu.Lock()
	for {
		if p.closed {
			err = p.closedError()
			break
		}
		if e := p.popLocked(); e != nil {
			p.hits++
			entry = e
			break
		}
		if !p.opts.Strict || p.live < p.opts.Capacity {
			p.live++
			p.reservations++
			reserved = true
			break
		}
		if !time.Now().Before(deadline) {
			p.accessTimeouts++
			err = p.timeoutError(timeout, nil)
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = p.contextError(timeout, ctxErr)
			break
		}
		if waitStart.IsZero() {
			waitStart = time.Now()
		}
		p.gate.await(ctx, &p.mu, deadline)
	}
	p.mu.Unlock()

	if !waitStart.IsZero() && p.opts.OnWait != nil {
		p.opts.OnWait(ctx, time.Since(waitStart), waitResult(err))
	}
	return entry, reserved, err
}

// Commit wraps a value constructed under a reserved slot into an entry.
func (p *Pool[T]) Commit(value T) *Entry[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	return &Entry[T]{value: value, created: now, used: now, version: p.version}
}

// ReturnIdle gives a checked-out entry back. It returns false with a reason
// when the entry was refused (pool closed, entry flushed or aged, or a
// non-strict pool already full); the live count is released either way and
// the caller must destroy a refused value.
func (p *Pool[T]) ReturnIdle(e *Entry[T]) (bool, Reason) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	e.used = now

	var reason Reason
	switch {
	case p.closed:
		reason = ReasonClosed
	case e.version != p.version:
		reason = ReasonFlushed
	case p.opts.MaxAge > 0 && now.Sub(e.created) > p.opts.MaxAge:
		reason = ReasonAged
	case !p.opts.Strict && len(p.idle) >= p.opts.Capacity:
		reason = ReasonFull
	}

	if reason != "" {
		p.refused++
		p.releaseLocked()
		return false, reason
	}

	p.idle = append(p.idle, e)
	p.gate.signal()
	return true, ""
}

// Discard releases one live slot: a checked-out entry that will not come
// back, or a reservation whose construction failed.
func (p *Pool[T]) Discard() {
	p.mu.Lock()
	p.discards++
	p.releaseLocked()
	p.mu.Unlock()
}

// Flush makes every existing entry stale. Idle entries are evicted by the
// next Sweep; checked-out entries are refused when returned.
func (p *Pool[T]) Flush() {
	p.mu.Lock()
	p.version++
	p.flushes++
	p.mu.Unlock()
}

// Sweep evicts stale, aged and idle-timed-out entries. Idle eviction keeps
// at least MinSize live entries, least recently used entries go first.
// The returned evictions have already released their slots.
func (p *Pool[T]) Sweep() []Eviction[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweeps++
	if p.closed || len(p.idle) == 0 {
		return nil
	}

	now := p.now()
	var evicted []Eviction[T]
	kept := p.idle[:0]
	for _, e := range p.idle {
		var reason Reason
		switch {
		case e.version != p.version:
			reason = ReasonFlushed
		case p.opts.MaxAge > 0 && now.Sub(e.created) > p.opts.MaxAge:
			reason = ReasonAged
		case p.opts.IdleTimeout > 0 && now.Sub(e.used) > p.opts.IdleTimeout && p.live > p.opts.MinSize:
			reason = ReasonIdle
		}
		if reason == "" {
			kept = append(kept, e)
			continue
		}
		evicted = append(evicted, Eviction[T]{Entry: e, Reason: reason})
		p.live--
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept

	if len(evicted) > 0 {
		p.evicted += int64(len(evicted))
		p.gate.signal()
	}
	return evicted
}

// Close refuses all further checkouts, wakes every waiter and returns the
// idle entries for destruction. Entries still checked out are refused when
// they come back; AwaitDrained waits for them.
func (p *Pool[T]) Close() []Eviction[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.drained = make(chan struct{})

	evicted := make([]Eviction[T], 0, len(p.idle))
	for i := len(p.idle) - 1; i >= 0; i-- {
		evicted = append(evicted, Eviction[T]{Entry: p.idle[i], Reason: ReasonClosed})
		p.idle[i] = nil
	}
	p.idle = p.idle[:0]
	p.live -= len(evicted)
	p.evicted += int64(len(evicted))

	if p.live <= 0 {
		close(p.drained)
	}
	p.gate.signal()
	return evicted
}

// AwaitDrained blocks until every checked-out entry of a closed pool has
// been returned or discarded, or ctx is done.
func (p *Pool[T]) AwaitDrained(ctx context.Context) error {
	p.mu.Lock()
	drained := p.drained
	p.mu.Unlock()

	if drained == nil {
		return errors.Newf(errors.ErrorTypeInvalidArgument, "pool %q is not closed", p.opts.Name)
	}

	select {
	case <-drained:
		return nil
	default:
	}

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "timed out waiting for pool to drain").
			WithDetail("pool", p.opts.Name).
			WithDetail("outstanding", p.Stats().Live)
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:       p.opts.Capacity,
		MinSize:        p.opts.MinSize,
		Strict:         p.opts.Strict,
		Closed:         p.closed,
		Live:           p.live,
		Idle:           len(p.idle),
		Active:         p.live - len(p.idle),
		Waiting:        p.gate.waiters,
		Version:        p.version,
		Hits:           p.hits,
		Reservations:   p.reservations,
		AccessTimeouts: p.accessTimeouts,
		Refused:        p.refused,
		Discards:       p.discards,
		Sweeps:         p.sweeps,
		Flushes:        p.flushes,
		Evicted:        p.evicted,
	}
}

func (p *Pool[T]) popLocked() *Entry[T] {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	e := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return e
}

// releaseLocked gives back one live slot and wakes whoever may use it.
func (p *Pool[T]) releaseLocked() {
	if p.live > 0 {
		p.live--
	}
	if p.closed {
		if p.live == 0 && p.drained != nil {
			select {
			case <-p.drained:
			default:
				close(p.drained)
			}
		}
		return
	}
	p.gate.signal()
}

func (p *Pool[T]) closedError() error {
	return errors.Newf(errors.ErrorTypeClosed, "pool %q is closed", p.opts.Name).
		WithDetail("pool", p.opts.Name)
}

func (p *Pool[T]) timeoutError(timeout time.Duration, cause error) error {
	msg := "no instances available in pool, waited " + timeout.String()
	var err *errors.Error
	if cause != nil {
		err = errors.Wrap(cause, errors.ErrorTypeNoInstanceAvailable, msg)
	} else {
		err = errors.New(errors.ErrorTypeNoInstanceAvailable, msg)
	}
	return err.WithDetail("pool", p.opts.Name).
		WithDetail("capacity", p.opts.Capacity).
		WithDetail("timeout", timeout)
}

func (p *Pool[T]) contextError(timeout time.Duration, ctxErr error) error {
	if ctxErr == context.DeadlineExceeded {
		p.accessTimeouts++
		return p.timeoutError(timeout, ctxErr)
	}
	return errors.Wrap(ctxErr, errors.ErrorTypeCancelled, "wait for instance cancelled").
		WithDetail("pool", p.opts.Name)
}

func waitResult(err error) string {
	switch {
	case err == nil:
		return WaitAcquired
	case errors.IsType(err, errors.ErrorTypeNoInstanceAvailable):
		return WaitTimeout
	case errors.IsType(err, errors.ErrorTypeClosed):
		return WaitClosed
	default:
		return WaitCancelled
	}
}
