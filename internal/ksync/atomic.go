package ksync

import "sync/atomic"

// Counter is the spec's atomic integer: increment, decrement,
// decrement-and-test, read, set (spec §4.11). Suited to reference counts;
// no other package in this module uses it.
type Counter struct {
	v atomic.Int64
}

// NewCounter returns a Counter initialized to n.
func NewCounter(n int64) *Counter {
	c := &Counter{}
	c.v.Store(n)
	return c
}

// Inc adds 1 and returns the new value.
func (c *Counter) Inc() int64 { return c.v.Add(1) }

// Dec subtracts 1 and returns the new value.
func (c *Counter) Dec() int64 { return c.v.Add(-1) }

// DecAndTest subtracts 1 and reports whether the result is zero, the
// pattern used to free a resource exactly once when its last reference
// drops (spec §4.11).
func (c *Counter) DecAndTest() bool { return c.v.Add(-1) == 0 }

// Load reads the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// Store sets the value unconditionally.
func (c *Counter) Store(n int64) { c.v.Store(n) }

// CompareAndSwap performs an atomic compare-and-swap, exposed for callers
// that need to build higher-level lock-free structures.
func (c *Counter) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}
