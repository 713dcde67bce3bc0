package playback

import (
	"sync"
	"time"
)

// Clock reports monotonic time on the playback timeline. Values never
// decrease.
type Clock interface {
	Now() time.Duration
}

// Compile-time interface assertions.
var (
	_ Clock = (*SystemClock)(nil)
	_ Clock = (*ManualClock)(nil)
)

// SystemClock measures elapsed monotonic process time since its creation.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a [SystemClock] whose zero is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now implements [Clock].
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.epoch)
}

// ManualClock is a [Clock] that only moves when told to. Safe for concurrent
// use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock returns a [ManualClock] positioned at start.
func NewManualClock(start time.Duration) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements [Clock].
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative values are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
