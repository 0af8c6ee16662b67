// Package apic implements internal/intc.Controller for x86: legacy 8259
// PIC mask-off, LAPIC spurious-vector/EOI/periodic-timer programming, and
// IOAPIC redirection-table entries. The IOAPIC redirection entry layout
// (vector, delivery mode, destination mode, mask bit, destination field) is
// grounded directly on the teacher's `IOAPIC.redirtbl` model, generalized
// from a host-emulated MMIO device to a real-hardware MMIO driver.
package apic

import (
	"github.com/Acteus/vibos/internal/arch"
	"github.com/Acteus/vibos/internal/arch/reg"
	"github.com/Acteus/vibos/internal/intc"
)

// Legacy PIC ports (8259A).
const (
	picMasterCmd = 0x20
	picMasterData = 0x21
	picSlaveCmd  = 0xA0
	picSlaveData = 0xA1
)

// LAPIC MMIO register offsets, relative to its base.
const (
	lapicID       = 0x020
	lapicEOI      = 0x0B0
	lapicSVR      = 0x0F0
	lapicLVTTimer = 0x320
	lapicTimerInitCount = 0x380
	lapicTimerCurCount  = 0x390
	lapicTimerDivide    = 0x3E0
)

const (
	lapicSVREnable  = 1 << 8
	lvtTimerPeriodic = 1 << 17
	timerDivideBy16  = 0b0011 // divisor-16 encoding spec §4.3 names
)

// IOAPIC MMIO register indices, selected via IOREGSEL/IOWIN.
const (
	ioapicRegSel = 0x00
	ioapicWin    = 0x10
	ioapicIDIdx  = 0x00
	ioapicVerIdx = 0x01
	ioapicRedirBase = 0x10
)

const (
	redirMaskBit = 1 << 16
	spuriousVector = 0xFF
)

// APIC drives a single LAPIC + single IOAPIC pair, the single-hart
// configuration this kernel targets (spec §9: no SMP).
type APIC struct {
	LAPICBase  uint64
	IOAPICBase uint64
	// SpuriousVector is the vector LAPIC's SVR is programmed with; IRQs at
	// or above it are treated as spurious by Dispatch.
	SpuriousVector uint32
	// Ports is the port-I/O backend used to mask the legacy PIC. Production
	// wiring sets this to amd64.PortIO{}; tests inject a fake so Init never
	// issues a real (ring-0-only) OUT instruction on the host running the
	// test.
	Ports arch.PortIO
}

var _ intc.Controller = (*APIC)(nil)

// Init masks the legacy PIC entirely (spec: once the LAPIC/IOAPIC path is
// active, the 8259 must never fire) and enables the LAPIC via its
// spurious-vector register.
func (a *APIC) Init() {
	a.Ports.OutB(picMasterData, 0xFF)
	a.Ports.OutB(picSlaveData, 0xFF)

	if a.SpuriousVector == 0 {
		a.SpuriousVector = spuriousVector
	}
	reg.Write32(a.LAPICBase+lapicSVR, lapicSVREnable|a.SpuriousVector)
}

// EnableIRQ clears the mask bit of irq's IOAPIC redirection entry and
// changes nothing else in it: the line delivers whatever vector SetVector
// last programmed, so callers that need a specific vector call SetVector
// first.
func (a *APIC) EnableIRQ(irq uint32) {
	a.setMask(irq, false)
}

func (a *APIC) DisableIRQ(irq uint32) {
	a.setMask(irq, true)
}

// SetVector programs irq's redirection entry with vector (and edge-
// triggered, fixed delivery, physical destination mode), leaving it masked
// until EnableIRQ is called.
func (a *APIC) SetVector(irq uint32, vector uint8) {
	lowIdx := ioapicRedirBase + irq*2
	low := a.ioapicRead(lowIdx)
	low = (low &^ 0xFF) | uint32(vector)
	low |= redirMaskBit
	a.ioapicWrite(lowIdx, low)
}

func (a *APIC) setMask(irq uint32, masked bool) {
	lowIdx := ioapicRedirBase + irq*2
	low := a.ioapicRead(lowIdx)
	if masked {
		low |= redirMaskBit
	} else {
		low &^= redirMaskBit
	}
	a.ioapicWrite(lowIdx, low)
}

func (a *APIC) ioapicRead(index uint32) uint32 {
	reg.Write32(a.IOAPICBase+ioapicRegSel, index)
	return reg.Read32(a.IOAPICBase + ioapicWin)
}

func (a *APIC) ioapicWrite(index uint32, val uint32) {
	reg.Write32(a.IOAPICBase+ioapicRegSel, index)
	reg.Write32(a.IOAPICBase+ioapicWin, val)
}

func (a *APIC) Spurious() uint32 { return a.SpuriousVector }

// Acknowledge has no LAPIC equivalent to GICv3's IAR register: the vector
// is already known from the CPU's interrupt-descriptor-table dispatch, so
// the IDT stub calls intc.DispatchVector(vector) directly instead of
// intc.Dispatch, and this method only exists to satisfy the Controller
// interface uniformly. It always reports the spurious vector so that code
// written against Dispatch for portability degrades to a no-op on x86
// rather than misbehaving.
func (a *APIC) Acknowledge() uint32 { return a.SpuriousVector }

// EndOfInterrupt writes any value to the LAPIC EOI register, the
// architecturally required signal that this hart is done servicing irq.
func (a *APIC) EndOfInterrupt(irq uint32) {
	reg.Write32(a.LAPICBase+lapicEOI, 0)
}

// ProgramPeriodicTimer configures the LAPIC timer in periodic mode with
// divisor 16 (spec §4.3's timer divisor) and the given initial count,
// delivering vector on every expiry.
func (a *APIC) ProgramPeriodicTimer(vector uint8, initialCount uint32) {
	reg.Write32(a.LAPICBase+lapicTimerDivide, timerDivideBy16)
	reg.Write32(a.LAPICBase+lapicLVTTimer, lvtTimerPeriodic|uint32(vector))
	reg.Write32(a.LAPICBase+lapicTimerInitCount, initialCount)
}

// CurrentCount reads the LAPIC timer's current count register, used by
// internal/timer to compute ms_since_boot between periodic ticks.
func (a *APIC) CurrentCount() uint32 {
	return reg.Read32(a.LAPICBase + lapicTimerCurCount)
}
