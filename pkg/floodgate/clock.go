package floodgate

import (
	"sync"
	"time"
)

// Clock abstracts the time source used by the limiter so that refill and
// sweep behavior can be tested deterministically.
// time.Time values returned by the standard library carry a monotonic
// reading, which keeps refill arithmetic immune to wall-clock adjustments.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// systemClock reads the real system clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
// This is the default clock used when none is provided.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a controllable clock for tests.
// It only moves when Advance or Set is called.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to the given time.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
