// Package pool provides a bounded object pool with blocking admission.
// One Pool holds the idle instances of one deployment: a LIFO stack, a
// live-instance counter and the capacity policy. A strict pool treats its
// capacity as a hard ceiling on live instances and parks callers on an
// admission gate when exhausted; a non-strict pool never blocks and only
// bounds the number of idle instances it keeps.
//
// Construction and destruction of values are the caller's business. The
// pool only tells the caller when it holds a reserved slot (construct a
// value and Commit it) and when a returned value was refused (destroy it).
//
// # Admission
//
// Checkout tries, in order: the idle stack (most recently returned first),
// a free construction slot, and then the admission gate. Waiters are woken
// by broadcast and compete again; wake order is not FIFO. A waiter gives up
// with an ErrorTypeNoInstanceAvailable error once its timeout elapses and
// with ErrorTypeCancelled when its context is cancelled.
//
// # Maintenance
//
// Flush bumps the pool version so that older entries are evicted by the next
// Sweep or refused on return. Sweep also evicts entries past MaxAge and, while
// more than MinSize entries are live, entries idle past IdleTimeout. Close
// hands back the idle entries and wakes all waiters; AwaitDrained waits for
// the checked-out remainder.
//
// Example usage:
//
//	p := pool.New[*Conn](pool.Options{Capacity: 4, Strict: true})
//	entry, reserved, err := p.Checkout(ctx, time.Second)
//	if err != nil {
//	    return err
//	}
//	if reserved {
//	    conn, err := dial()
//	    if err != nil {
//	        p.Discard()
//	        return err
//	    }
//	    entry = p.Commit(conn)
//	}
//	defer func() {
//	    if ok, _ := p.ReturnIdle(entry); !ok {
//	        entry.Value().Close()
//	    }
//	}()
package pool
