// Package counter defines progress counters reported by long running build
// stages. Counters are injected by the caller; a missing counter never affects
// the correctness of the component that increments it.
package counter

import "sync/atomic"

// Counter accumulates a value and publishes it on Flush.
type Counter interface {
	// Increment adds one.
	Increment()
	// IncrementBy adds n.
	IncrementBy(n int64)
	// Flush publishes the current value. Implementations should skip
	// the publication if the value has not changed since the last flush.
	Flush() error
}

// Noop is a counter that discards everything.
var Noop Counter = noop{}

type noop struct{}

func (noop) Increment()        {}
func (noop) IncrementBy(int64) {}
func (noop) Flush() error      { return nil }

// --------------------------------------------------------------------

// Local is a thread-safe in-memory counter.
type Local struct {
	n int64
}

// Increment implements Counter.
func (c *Local) Increment() { c.IncrementBy(1) }

// IncrementBy implements Counter.
func (c *Local) IncrementBy(n int64) { atomic.AddInt64(&c.n, n) }

// Flush implements Counter.
func (c *Local) Flush() error { return nil }

// Value returns the current value.
func (c *Local) Value() int64 { return atomic.LoadInt64(&c.n) }
