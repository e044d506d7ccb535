package kernel

import (
	"sync/atomic"
	"time"
)

// Tick is a reading of the free-running 32-bit counter. It wraps modulo 2^32,
// so ticks must be compared with Before/After, never with <.
type Tick uint32

// Duration is a span measured in counter ticks.
type Duration uint32

// Before reports whether t is earlier than u. The result is correct as long as
// the two readings are less than 2^31 ticks apart.
func (t Tick) Before(u Tick) bool { return int32(t-u) < 0 }

// After reports whether t is later than u.
func (t Tick) After(u Tick) bool { return int32(t-u) > 0 }

// Sub returns the signed distance t-u in ticks.
func (t Tick) Sub(u Tick) int32 { return int32(t - u) }

// Add returns t advanced by d, wrapping.
func (t Tick) Add(d Duration) Tick { return t + Tick(d) }

// Counter is the hardware timer the clock reads. Hz must not change.
type Counter interface {
	Now() uint32
	Hz() uint32
}

// Clock converts a Counter into ticks and durations.
type Clock struct {
	c  Counter
	hz uint32
}

// NewClock wraps a counter. A nil counter or a zero rate is fatal: the system
// must not start without a timebase.
func NewClock(c Counter) (*Clock, error) {
	if c == nil {
		return nil, ErrNoClock
	}
	hz := c.Hz()
	if hz == 0 {
		return nil, ErrNoClock
	}
	return &Clock{c: c, hz: hz}, nil
}

// Now returns the current counter reading.
func (c *Clock) Now() Tick { return Tick(c.c.Now()) }

// At computes the instant offset ticks after base.
func (c *Clock) At(base Tick, offset Duration) Tick { return base.Add(offset) }

// Hz returns the counter rate.
func (c *Clock) Hz() uint32 { return c.hz }

// Ticks converts d to counter ticks, rounding up so a non-zero wait never
// becomes zero. Durations beyond the counter range saturate.
func (c *Clock) Ticks(d time.Duration) Duration {
	if d <= 0 {
		return 0
	}
	const limit = 1<<31 - 1
	hz := uint64(c.hz)
	secs := uint64(d) / uint64(time.Second)
	if secs > limit/hz {
		return limit
	}
	rem := uint64(d) % uint64(time.Second)
	n := secs*hz + (rem*hz+uint64(time.Second)-1)/uint64(time.Second)
	if n > limit {
		n = limit
	}
	return Duration(n)
}

// Duration converts a tick count back to wall time.
func (c *Clock) Duration(d Duration) time.Duration {
	return time.Duration(uint64(d) * uint64(time.Second) / uint64(c.hz))
}

// ManualCounter is a Counter advanced explicitly. It is used by tests and by
// deterministic replays.
type ManualCounter struct {
	now atomic.Uint32
	hz  uint32
}

// NewManualCounter returns a counter at start ticking at hz.
func NewManualCounter(hz uint32, start uint32) *ManualCounter {
	c := &ManualCounter{hz: hz}
	c.now.Store(start)
	return c
}

// Now returns the current count, moved only by Advance and Set.
func (c *ManualCounter) Now() uint32 { return c.now.Load() }

// Hz returns the rate the counter was created with.
func (c *ManualCounter) Hz() uint32 { return c.hz }

// Advance moves the counter forward by n ticks and returns the new value.
func (c *ManualCounter) Advance(n uint32) uint32 { return c.now.Add(n) }

// Set forces the counter to v.
func (c *ManualCounter) Set(v uint32) { c.now.Store(v) }
