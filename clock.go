package tracecore

import (
	"sync"

	"github.com/zoobzio/clockz"
)

// Anchor pairs a cycle reading with a wall-clock reading so later cycle
// deltas can be converted back to unix nanoseconds. See spec §4.1.
type Anchor struct {
	CyclesZero   uint64
	UnixNanoZero uint64
	CyclesPerSec uint64
}

// ToUnixNanos converts a cycle count captured under this anchor to unix
// nanoseconds. Cycles before the anchor (clock skew, recalibration race)
// clamp to UnixNanoZero rather than underflowing.
func (a Anchor) ToUnixNanos(cycles uint64) uint64 {
	if cycles <= a.CyclesZero || a.CyclesPerSec == 0 {
		return a.UnixNanoZero
	}
	delta := cycles - a.CyclesZero
	// Split into whole seconds and remainder so delta*1e9 cannot overflow.
	return a.UnixNanoZero + delta/a.CyclesPerSec*1_000_000_000 +
		delta%a.CyclesPerSec*1_000_000_000/a.CyclesPerSec
}

// Clock is tracecore's monotonic timestamp source. It wraps a
// github.com/zoobzio/clockz.Clock rather than reading a hardware cycle
// counter directly — see DESIGN.md for why. Cycles are nanoseconds since
// the Unix epoch as read from the clockz clock, so CyclesPerSec is always 1e9; the Anchor/cycle
// vocabulary from spec §4.1 is kept intact so a future cgo/asm cycle
// counter can be dropped in without touching callers.
//
// Reads on the hot path (NowCycles) perform no allocation and no locking
// beyond the clockz.Clock implementation itself (clockz.RealClock reads
// time.Now(), which is lock-free on all supported platforms).
type Clock struct {
	clock clockz.Clock

	mu     sync.RWMutex
	anchor Anchor
}

// NewClock builds a Clock around the given injectable clock and captures
// the initial anchor immediately.
func NewClock(clock clockz.Clock) *Clock {
	c := &Clock{clock: clock}
	c.Recalibrate()
	return c
}

// NowCycles returns the current cycle count (nanoseconds since the Unix
// epoch, per the clockz clock). Allocation-free.
func (c *Clock) NowCycles() uint64 {
	return uint64(c.clock.Now().UnixNano())
}

// Recalibrate re-pairs a cycle reading with a wall-clock reading. Safe to
// call concurrently with NowCycles/AnchorSnapshot; readers never observe a
// torn anchor.
func (c *Clock) Recalibrate() {
	now := c.clock.Now()
	cycles := uint64(now.UnixNano())

	c.mu.Lock()
	c.anchor = Anchor{
		CyclesZero:   cycles,
		UnixNanoZero: cycles,
		CyclesPerSec: 1_000_000_000,
	}
	c.mu.Unlock()
}

// AnchorSnapshot returns the anchor currently in effect.
func (c *Clock) AnchorSnapshot() Anchor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor
}

// defaultClock is the process-wide Clock used by every component that
// doesn't have one injected explicitly (LocalStore guards, root Span
// creation). Tests that need deterministic timing build their own Clock
// around clockz.NewFakeClock() and pass it where a *Clock is accepted
// (LocalStore.PushLocal) rather than mutating this package variable; Root
// and EnterLocal always use defaultClock.
var defaultClock = NewClock(clockz.RealClock)
