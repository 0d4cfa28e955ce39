package timectrl

import (
	"sync"
	"time"
)

// Epoch is the virtual time at which a simulation starts unless told otherwise.
var Epoch = time.Unix(0, 0).UTC()

// SimClock is an interface for accessing simulation time. Components depend
// on this abstraction rather than a concrete clock so tests can drive time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// VirtualClock is a SimClock that only moves when told to. It is advanced by
// the event scheduler to the timestamp of each event it dispatches.
type VirtualClock struct {
	mu    sync.RWMutex
	start time.Time
	now   time.Time
}

// NewVirtualClock constructs a clock reading start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{start: start, now: start}
}

// Now returns the current simulation time. Implements SimClock.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Start returns the time the clock was created at.
func (c *VirtualClock) Start() time.Time {
	return c.start
}

// Elapsed returns the virtual time elapsed since Start.
func (c *VirtualClock) Elapsed() time.Duration {
	return c.Now().Sub(c.start)
}

// AdvanceTo moves the clock to t. Time is monotonic: an earlier t is ignored
// and false is returned.
func (c *VirtualClock) AdvanceTo(t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		return false
	}
	c.now = t
	return true
}

// Advance moves the clock forward by d.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
