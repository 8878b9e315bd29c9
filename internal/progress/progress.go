// Package progress aggregates the number of identifiers written across all
// workers of a run. A Tracker is created per run and handed to every worker;
// there is no package-level state.
package progress

import (
	"sync"
	"sync/atomic"
)

// Observer receives progress increments. Implementations must be safe for
// concurrent use because every worker reports through the same observers.
type Observer interface {
	Advance(n int64)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(n int64)

// Advance calls f(n).
func (f ObserverFunc) Advance(n int64) { f(n) }

// Nop discards progress.
type Nop struct{}

// Advance does nothing.
func (Nop) Advance(int64) {}

// Counter is an atomic running total.
type Counter struct {
	v atomic.Int64
}

// Add increments the counter by n and returns the new total.
func (c *Counter) Add(n int64) int64 {
	return c.v.Add(n)
}

// Load returns the current total.
func (c *Counter) Load() int64 {
	return c.v.Load()
}

// Tracker owns the shared counter for a run and forwards every increment to
// its observers. Increments are never lost and the total never decreases.
type Tracker struct {
	counter   Counter
	mu        sync.RWMutex
	observers []Observer
}

// NewTracker creates a tracker that forwards increments to observers.
func NewTracker(observers ...Observer) *Tracker {
	t := &Tracker{}
	for _, o := range observers {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
	return t
}

// Attach registers an additional observer.
func (t *Tracker) Attach(o Observer) {
	if o == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Advance adds n to the total. Non-positive values are ignored.
func (t *Tracker) Advance(n int64) {
	if n <= 0 {
		return
	}
	t.counter.Add(n)

	t.mu.RLock()
	observers := t.observers
	t.mu.RUnlock()

	for _, o := range observers {
		o.Advance(n)
	}
}

// Total returns the number of identifiers reported so far.
func (t *Tracker) Total() int64 {
	return t.counter.Load()
}
