// Package intc implements the architecture-neutral interrupt core: a
// handler registry and central dispatch loop sitting on top of a
// Controller (internal/intc/gicv3 on ARM, internal/intc/apic on x86).
package intc

import (
	"fmt"

	"github.com/Acteus/vibos/internal/klog"
)

// Handler processes one IRQ. It runs with interrupts still masked on the
// current hart (spec: handlers never nest on the same hart) and must not
// block.
type Handler func(irq uint32)

// Controller is the architecture-specific interrupt controller surface:
// GICv3's distributor+redistributor pair on ARM, PIC/LAPIC/IOAPIC on x86.
type Controller interface {
	// Init brings the controller up: masks every line, programs default
	// priorities, and (on ARM) wakes the redistributor.
	Init()
	EnableIRQ(irq uint32)
	DisableIRQ(irq uint32)
	// Acknowledge returns the highest-priority pending IRQ, or the
	// controller's spurious value if none is pending.
	Acknowledge() uint32
	// Spurious is the lowest IRQ value Dispatch treats as spurious: any
	// Acknowledge result at or above it is dropped without EOI (1020 on
	// GICv3, whose no-interrupt-pending value is 1023; the spurious vector
	// on APIC).
	Spurious() uint32
	EndOfInterrupt(irq uint32)
}

var (
	log      = klog.WithSource("intc")
	handlers = map[uint32]Handler{}
	ctrl     Controller
)

// SetController installs the active architecture's Controller and brings it
// up. Must be called exactly once during kernel init, after the HAL's IRQs
// are masked.
func SetController(c Controller) {
	ctrl = c
	ctrl.Init()
}

// Register associates irq with handler, replacing any prior registration.
func Register(irq uint32, h Handler) {
	handlers[irq] = h
	ctrl.EnableIRQ(irq)
}

// Unregister removes irq's handler and masks the line.
func Unregister(irq uint32) {
	delete(handlers, irq)
	ctrl.DisableIRQ(irq)
}

// Dispatch is the trap-entry callback: acknowledge, look up a handler, run
// it (or log a warning for an unregistered IRQ), then EOI. Spurious
// interrupts are dropped silently, matching GICv3's documented behavior for
// IDs 1020-1023.
func Dispatch() {
	irq := ctrl.Acknowledge()
	if irq >= ctrl.Spurious() {
		return
	}
	h, ok := handlers[irq]
	if !ok {
		log.Warnf("unhandled IRQ %d", irq)
		ctrl.EndOfInterrupt(irq)
		return
	}
	h(irq)
	ctrl.EndOfInterrupt(irq)
}

// DispatchVector is Dispatch's counterpart for controllers whose
// acknowledge step happens implicitly at trap entry (x86's IDT vector
// number, rather than GICv3's explicit IAR read): the architecture trap
// stub already knows irq, so it skips Acknowledge and calls this directly.
func DispatchVector(irq uint32) {
	h, ok := handlers[irq]
	if !ok {
		log.Warnf("unhandled IRQ %d", irq)
		ctrl.EndOfInterrupt(irq)
		return
	}
	h(irq)
	ctrl.EndOfInterrupt(irq)
}

// ErrNoController is the error for use before SetController has run.
// Nothing in this module returns it: Register, Unregister and Dispatch use
// the controller directly, and Installed reports whether one is set.
var ErrNoController = fmt.Errorf("intc: no controller installed")

// Installed reports whether SetController has run.
func Installed() bool { return ctrl != nil }
