// Package timer implements the monotonic tick source and ms_since_boot
// conversion (spec §4.3), plus the periodic-interrupt hook the scheduler
// attaches its preemption callback to.
package timer

import (
	"sync/atomic"
)

// Source is the architecture-specific tick counter: GICv3's generic timer
// (CNTPCT_EL0) on ARM, the LAPIC timer's current-count register on x86.
// Either backend is driven by a fixed frequency established at boot.
type Source interface {
	// Ticks returns the current free-running tick count.
	Ticks() uint64
}

var (
	source    Source
	freqHz    atomic.Uint64
	tickCallbacks []func()
)

// Init installs the tick source and its frequency in Hz (spec §4.3:
// ms_since_boot = ticks * 1000 / freq).
func Init(s Source, freqHzValue uint64) {
	source = s
	freqHz.Store(freqHzValue)
}

// FrequencyHz returns the configured tick frequency.
func FrequencyHz() uint64 { return freqHz.Load() }

// Ticks returns the current raw tick count.
func Ticks() uint64 {
	if source == nil {
		return 0
	}
	return source.Ticks()
}

// MSSinceBoot converts the current tick count to milliseconds since boot,
// per spec §4.3's exact formula.
func MSSinceBoot() uint64 {
	f := freqHz.Load()
	if f == 0 {
		return 0
	}
	return Ticks() * 1000 / f
}

// MSSinceBootAt converts an arbitrary tick value, used by tests and by
// callers recording a tick snapshot earlier and computing elapsed time
// without re-reading the (possibly advancing) live counter.
func MSSinceBootAt(ticks uint64) uint64 {
	f := freqHz.Load()
	if f == 0 {
		return 0
	}
	return ticks * 1000 / f
}

// OnTick registers a callback that FireTick invokes. FireTick is the entry
// point for the periodic timer interrupt handler; no package in this module
// registers that handler with internal/intc. The scheduler's preemption
// hook (installed by internal/kernel's Boot) is one such callback; multiple
// may be registered.
func OnTick(cb func()) {
	tickCallbacks = append(tickCallbacks, cb)
}

// FireTick runs every registered callback. Called from the timer IRQ
// handler, so callbacks must not block.
func FireTick() {
	for _, cb := range tickCallbacks {
		cb()
	}
}

// ResetForTest clears all global timer state; test-only.
func ResetForTest() {
	source = nil
	freqHz.Store(0)
	tickCallbacks = nil
}
