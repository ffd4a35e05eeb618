package dashboard

import (
	"fmt"
	"sync/atomic"
)

// CountdownClock derives the time until the next collector sample from the
// last observed sample timestamp. It never touches the network.
type CountdownClock struct {
	cadence int64
	last    atomic.Int64 // epoch seconds; 0 = unset
}

func NewCountdownClock(cadenceSeconds int) *CountdownClock {
	if cadenceSeconds <= 0 {
		cadenceSeconds = FallbackCadence
	}
	return &CountdownClock{cadence: int64(cadenceSeconds)}
}

// Observe records ts as the latest sample time. Older timestamps are
// ignored so the clock never moves backwards.
func (c *CountdownClock) Observe(ts int64) {
	for {
		cur := c.last.Load()
		if ts <= cur {
			return
		}
		if c.last.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Last returns the last observed sample time and whether one exists.
func (c *CountdownClock) Last() (int64, bool) {
	v := c.last.Load()
	return v, v > 0
}

// Tick returns the seconds remaining until the next sample at now. waiting
// is true until a sample has been observed.
//
// Exactly on a cadence boundary the remaining time is 0, not a full period.
func (c *CountdownClock) Tick(now int64) (remaining int, waiting bool) {
	last := c.last.Load()
	if last <= 0 {
		return 0, true
	}
	elapsed := now - last
	if elapsed < 0 {
		elapsed = 0
	}
	rem := c.cadence - elapsed%c.cadence
	if rem == c.cadence {
		rem = 0
	}
	return int(rem), false
}

// Text renders the countdown panel line for now.
func (c *CountdownClock) Text(now int64) string {
	rem, waiting := c.Tick(now)
	if waiting {
		return "Next probe: waiting for first sample…"
	}
	return fmt.Sprintf("Next probe: %ds", rem)
}
