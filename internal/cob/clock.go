package cob

import "sync"

// LamportClock issues the logical timestamps stamped on operations.
//
// The clock only moves forward: Observe folds in timestamps seen on merged
// remote operations, so the next local operation is always stamped later
// than everything this replica has witnessed. No wall-clock time is used
// anywhere in ordering.
//
// Thread-safety: safe for concurrent use.
type LamportClock struct {
	mu   sync.Mutex
	last int64
}

// NewLamportClock creates a clock starting at 0; the first Tick returns 1.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// NewLamportClockAt creates a clock resuming from a known timestamp,
// typically the maximum clock found in a loaded operation log.
func NewLamportClockAt(last int64) *LamportClock {
	return &LamportClock{last: last}
}

// Tick returns the next timestamp.
func (c *LamportClock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Observe advances the clock past a timestamp seen on a remote operation.
func (c *LamportClock) Observe(seen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seen > c.last {
		c.last = seen
	}
}

// Current returns the latest issued or observed timestamp.
func (c *LamportClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
