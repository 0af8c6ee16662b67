package klog

import "fmt"

// haltFunc is invoked after a kernel panic has logged its message and
// disabled interrupts. By default it blocks forever in an empty select;
// tests override it so a triggered panic path returns control instead of
// hanging the test binary.
var haltFunc = func() { select {} }

// irqDisabler is the minimal slice of arch.IRQMasker the panic path needs.
// Defined locally rather than importing internal/arch so this package has
// no dependency on a specific architecture backend; internal/kernel wires
// the real HAL in during init via SetIRQDisabler.
type irqDisabler interface {
	IRQDisable()
}

var disabler irqDisabler

// SetIRQDisabler registers the active HAL's interrupt-disable hook so Fatal
// can mask interrupts before halting (spec: panic never resumes, and must
// not field another IRQ mid-unwind).
func SetIRQDisabler(d irqDisabler) {
	disabler = d
}

// SetHaltFunc overrides what Fatal does after logging and masking
// interrupts. Tests use this to assert a panic occurred without hanging.
func SetHaltFunc(f func()) {
	haltFunc = f
}

// Fatal logs a Panic-severity message, disables interrupts, and halts. It
// never returns (barring a test-installed haltFunc). This is the kernel's
// programming-error path (spec §7.5): never recovered, never reported as an
// error code.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	record(Panic, "kernel", msg)
	if disabler != nil {
		disabler.IRQDisable()
	}
	haltFunc()
}
