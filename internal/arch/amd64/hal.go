package amd64

import "github.com/Acteus/vibos/internal/arch"

// HAL implements arch.HAL for a real amd64 hart. The IRQ/MMU/cache-barrier
// primitives are CLI/STI/MOV-CR3/INVLPG/WBINVD — none have a syscall or
// library equivalent at ring 0, so (like the MSR and port-I/O accessors)
// they are implemented in hal_amd64.s.
type HAL struct{}

var _ arch.HAL = HAL{}

//go:noescape
func irqEnable()

//go:noescape
func irqDisable()

//go:noescape
func irqFlagsEnabled() bool

//go:noescape
func loadCR3(root uint64)

//go:noescape
func reloadCR3()

//go:noescape
func invlpg(vaddr uint64)

//go:noescape
func wbinvd()

//go:noescape
func mfence()

func (HAL) IRQEnable()  { irqEnable() }
func (HAL) IRQDisable() { irqDisable() }

func (HAL) IRQSave() bool {
	was := irqFlagsEnabled()
	irqDisable()
	return was
}

func (HAL) IRQRestore(wasEnabled bool) {
	if wasEnabled {
		irqEnable()
	}
}

func (HAL) IRQEnabled() bool { return irqFlagsEnabled() }

// SwitchRoot loads a new CR3, which on amd64 implicitly flushes all
// non-global TLB entries (spec §4.1 "mmu_switch").
func (HAL) SwitchRoot(rootPhysAddr uint64) { loadCR3(rootPhysAddr) }

// Invalidate invalidates the single page containing vaddr via INVLPG, or,
// when vaddr is zero, every non-global TLB entry by reloading CR3 with its
// current value (amd64 has no "flush everything but keep CR3" instruction
// short of that reload).
func (HAL) Invalidate(vaddr uint64) {
	if vaddr == 0 {
		reloadCR3()
		return
	}
	invlpg(vaddr)
}

func (HAL) DataSyncBarrier()        { mfence() }
func (HAL) InstructionSyncBarrier() { mfence() }
func (HAL) WriteBackInvalidateAll() { wbinvd() }

func (HAL) Architecture() arch.CPUArch { return arch.AMD64 }

func (HAL) CPUID() uint32 { return 0 }
