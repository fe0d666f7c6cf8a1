package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Coordinators and caches take their
// notion of "now" as an injected function, so tests move time by calling Set
// or Advance instead of sleeping.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewClock starts a clock at the given instant; the zero value starts it at
// ReferenceTime.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

// Now reports the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// NowFunc adapts the clock for injection; a nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps the clock to an absolute instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	moved := c.now
	c.mu.Unlock()
	return moved
}
