package pool

import "time"

// Entry is a pooled value plus the bookkeeping the pool needs to age,
// flush and idle-evict it. Entries are handed out by Checkout and
// TryTakeIdle and must come back through ReturnIdle or Discard.
type Entry[T any] struct {
	value   T
	created time.Time
	used    time.Time
	version uint64
}

// Value returns the pooled value.
func (e *Entry[T]) Value() T {
	return e.value
}

// Created returns when the value was constructed.
func (e *Entry[T]) Created() time.Time {
	return e.created
}

// Version returns the pool version the entry was created under. Entries
// from an older version are stale after a Flush.
func (e *Entry[T]) Version() uint64 {
	return e.version
}
