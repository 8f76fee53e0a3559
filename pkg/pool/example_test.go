// Package pool provides example usage of the bounded instance pool.
package pool_test

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/pool"
)

type worker struct {
	id int
}

// Example demonstrates the checkout, construct and return cycle.
func Example() {
	p := pool.New[*worker](pool.Options{Name: "workers", Capacity: 2, Strict: true})
	ctx := context.Background()
	next := 0

	checkout := func() *pool.Entry[*worker] {
		entry, reserved, err := p.Checkout(ctx, time.Second)
		if err != nil {
			panic(err)
		}
		if reserved {
			next++
			entry = p.Commit(&worker{id: next})
		}
		return entry
	}

	a := checkout()
	b := checkout()
	fmt.Println("checked out:", a.Value().id, b.Value().id)

	p.ReturnIdle(a)
	p.ReturnIdle(b)

	// The most recently returned worker is reused first
	c := checkout()
	fmt.Println("reused:", c.Value().id)
	p.ReturnIdle(c)

	// Output:
	// checked out: 1 2
	// reused: 2
}

// ExamplePool_Checkout shows a strict pool rejecting a caller once its
// access timeout elapses.
func ExamplePool_Checkout() {
	p := pool.New[*worker](pool.Options{Name: "single", Capacity: 1, Strict: true})

	held, reserved, _ := p.Checkout(context.Background(), 0)
	if reserved {
		held = p.Commit(&worker{id: 1})
	}

	_, _, err := p.Checkout(context.Background(), 10*time.Millisecond)
	fmt.Println(errors.IsType(err, errors.ErrorTypeNoInstanceAvailable))

	p.ReturnIdle(held)

	// Output:
	// true
}

// ExamplePool_Flush shows stale entries being evicted after a flush.
func ExamplePool_Flush() {
	p := pool.New[*worker](pool.Options{Name: "flush", Capacity: 4, Strict: true})

	entry, _, _ := p.Checkout(context.Background(), 0)
	entry = p.Commit(&worker{id: 1})
	p.ReturnIdle(entry)

	p.Flush()
	for _, ev := range p.Sweep() {
		fmt.Println("evicted worker", ev.Entry.Value().id, "reason:", ev.Reason)
	}

	// Output:
	// evicted worker 1 reason: flushed
}
