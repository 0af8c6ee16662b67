// Package gicv3 implements internal/intc.Controller for an ARM GICv3
// distributor+redistributor pair. Register offsets and the distributor/
// redistributor base split are grounded on the teacher's vGIC device
// configuration (which programs a guest-visible distributor and
// redistributor at fixed physical bases); here the same split addresses
// real MMIO rather than a KVM device attribute.
//go:build arm64

package gicv3

import (
	"github.com/Acteus/vibos/internal/arch/reg"
	"github.com/Acteus/vibos/internal/intc"
)

// Distributor register offsets (GICv3 architecture spec, GICD_*).
const (
	gicdCtlr      = 0x0000
	gicdTyper     = 0x0004
	gicdIgroupr0  = 0x0080
	gicdIsenabler0 = 0x0100
	gicdIcenabler0 = 0x0180
	gicdIpriorityr0 = 0x0400
)

// Redistributor register offsets, relative to the SGI_base frame (the
// second 64KB frame of each redistributor's 128KB region).
const (
	gicrCtlr      = 0x0000
	gicrWaker     = 0x0014
	sgiFrameOffset = 0x10000
	gicrIgroupr0  = sgiFrameOffset + 0x0080
	gicrIsenabler0 = sgiFrameOffset + 0x0100
	gicrIcenabler0 = sgiFrameOffset + 0x0180
	gicrIpriorityr0 = sgiFrameOffset + 0x0400
)

const (
	gicrWakerProcessorSleep  = 1 << 1
	gicrWakerChildrenAsleep  = 1 << 2
	// spuriousThreshold is the start of the architecturally reserved INTID
	// range (spec §4.2: "An interrupt number >= 1020 is spurious and dropped
	// without EOI"); ICC_IAR1_EL1 returns 1023 when nothing is pending, but
	// 1020-1022 are reserved too, so Spurious() reports the threshold, not
	// just the no-interrupt-pending sentinel.
	spuriousThreshold = 1020
	defaultPriority   = 0x80
)

// GICv3 drives a single-redistributor (single-hart) GICv3 instance.
type GICv3 struct {
	DistributorBase   uint64
	RedistributorBase uint64
}

var _ intc.Controller = (*GICv3)(nil)

// Init wakes the redistributor, disables every SGI/PPI at the
// redistributor and sets the default priority on those 32 lines (SPI
// priorities in the distributor are left as they are), enables the
// distributor in affinity-routing (ARE) mode, and enables the CPU interface.
func (g *GICv3) Init() {
	// Wake the redistributor: clear ProcessorSleep, wait for ChildrenAsleep
	// to clear.
	reg.ClearBits32(g.RedistributorBase+gicrWaker, gicrWakerProcessorSleep)
	reg.WaitClear32(g.RedistributorBase+gicrWaker, gicrWakerChildrenAsleep, 100000)

	// Disable all SGIs/PPIs, then set every priority byte to the default.
	reg.Write32(g.RedistributorBase+gicrIcenabler0, 0xFFFFFFFF)
	for off := uint64(0); off < 32; off += 4 {
		reg.Write32(g.RedistributorBase+gicrIpriorityr0+off, defaultPriority*0x01010101)
	}

	// Enable the distributor for group-1 interrupts with affinity routing.
	reg.Write32(g.DistributorBase+gicdCtlr, 1<<1 /* EnableGrp1A */ |1<<4 /* ARE */)

	enableCPUInterface()
}

func (g *GICv3) EnableIRQ(irq uint32) {
	base, off := g.registerFor(irq, gicdIsenabler0, gicrIsenabler0)
	reg.SetBits32(base+off, bitFor(irq))
}

func (g *GICv3) DisableIRQ(irq uint32) {
	base, off := g.registerFor(irq, gicdIcenabler0, gicrIcenabler0)
	// ICENABLER is write-1-to-clear and reads back the enabled set, so a
	// read-modify-write would disable every enabled line in the word.
	reg.Write32(base+off, bitFor(irq))
}

// registerFor picks the redistributor (SGI/PPI, irq<32) or distributor
// (SPI, irq>=32) register bank and the word offset within it.
func (g *GICv3) registerFor(irq uint32, distReg, redistReg uint64) (base uint64, off uint64) {
	wordOff := uint64(irq/32) * 4
	if irq < 32 {
		return g.RedistributorBase, redistReg + wordOff
	}
	return g.DistributorBase, distReg + wordOff
}

func bitFor(irq uint32) uint32 { return 1 << (irq % 32) }

func (g *GICv3) Spurious() uint32 { return spuriousThreshold }

// Acknowledge reads ICC_IAR1_EL1, the CPU-interface register that returns
// the highest-priority pending group-1 interrupt ID (spec: values >=1020
// are architecturally reserved/spurious).
func (g *GICv3) Acknowledge() uint32 {
	return readICCIAR1EL1()
}

// EndOfInterrupt writes ICC_EOIR1_EL1.
func (g *GICv3) EndOfInterrupt(irq uint32) {
	writeICCEOIR1EL1(irq)
}

// enableCPUInterface, readICCIAR1EL1, writeICCEOIR1EL1 are declared in
// cpuif_arm64.go and implemented in cpuif_arm64.s: the GICv3 CPU interface is accessed through AArch64 system
// registers (ICC_*_EL1), not MMIO, so these drop to assembly the same way
// internal/arch/arm64's DAIF/TTBR0 accessors do.
