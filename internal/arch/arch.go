// Package arch defines the architecture-neutral contract every per-CPU HAL
// backend (internal/arch/amd64, internal/arch/arm64) implements (spec §4.1).
// Every primitive here is documented by the spec as infallible: the failure
// model is "undefined behavior prevented by the caller", so these methods
// return no error and panic only on a violated precondition (a class-5
// programming error per spec §7.5), never on expected input.
package arch

// CPUArch identifies which backend is active.
type CPUArch int

const (
	AMD64 CPUArch = iota
	ARM64
)

func (a CPUArch) String() string {
	if a == ARM64 {
		return "arm64"
	}
	return "amd64"
}

// IRQMasker is the unconditional enable/disable plus save/restore surface
// (spec §4.1). IRQSave disables interrupts and returns whether they were
// enabled beforehand; IRQRestore puts that state back. Nesting is legal:
// IRQSave/IRQRestore pairs may be arbitrarily interleaved within a hart as
// long as each IRQRestore is matched to its own IRQSave's return value.
type IRQMasker interface {
	IRQEnable()
	IRQDisable()
	// IRQSave disables interrupts and reports whether they were enabled
	// immediately before the call.
	IRQSave() (wasEnabled bool)
	// IRQRestore re-enables interrupts only if wasEnabled is true.
	IRQRestore(wasEnabled bool)
	// IRQEnabled reports the current processor interrupt-enable state.
	IRQEnabled() bool
}

// Context is the saved register state of one task: GPRs, stack pointer,
// program counter, and processor status. Its fields are backend-specific
// (see arch/amd64.Context, arch/arm64.Context); this package only names the
// operations every backend's concrete Context type supports through
// ContextSwitcher.
type Context interface {
	// PC returns the saved program counter.
	PC() uint64
	// SP returns the saved stack pointer.
	SP() uint64
}

// ContextSwitcher saves the caller's context and resumes another task's,
// per spec §4.1's context_switch/context_init contract. Implementations live
// per-architecture because the register set and calling convention differ.
// C is left unconstrained (rather than bound to Context) because every
// concrete Context type (arch/amd64.Context, arch/arm64.Context) implements
// PC/SP on a pointer receiver, not the value type a "C Context" bound would
// require; callers that need PC/SP call them on the *C this interface
// already hands around.
type ContextSwitcher[C any] interface {
	// Switch saves the caller's state into out, loads in, and resumes
	// execution at in's PC. Returning from Switch means some other caller
	// switched back into the task that called Switch.
	Switch(out, in *C)
	// Init zeroes ctx and sets it up to begin execution at entry with stack
	// pointer stackTop, first argument register set to arg, and processor
	// status "kernel mode, IRQs masked". The task becomes ready only once
	// Init has returned.
	Init(ctx *C, entry uintptr, stackTop uintptr, arg uintptr)
}

// MMU is the virtual-memory control surface (spec §4.1/§4.5).
type MMU interface {
	// SwitchRoot installs a new root page-table physical base and performs a
	// full TLB invalidation with the architecture's required barriers.
	SwitchRoot(rootPhysAddr uint64)
	// Invalidate invalidates the page containing vaddr, or the entire TLB if
	// vaddr is zero. Barriered.
	Invalidate(vaddr uint64)
}

// PortIO is only implemented on x86 targets; ARM backends do not satisfy
// this interface.
type PortIO interface {
	InB(port uint16) uint8
	InW(port uint16) uint16
	InL(port uint16) uint32
	OutB(port uint16, v uint8)
	OutW(port uint16, v uint16)
	OutL(port uint16, v uint32)
}

// CacheBarrier issues the architecture's TLB/cache completion barriers
// (DSB+ISB on ARM, implicit in CR3 reload on x86 but still exposed for
// explicit cache-maintenance operations like the MTRR programming sequence
// in spec §4.5).
type CacheBarrier interface {
	DataSyncBarrier()
	InstructionSyncBarrier()
	WriteBackInvalidateAll()
}

// HAL bundles everything one architecture backend must provide. The kernel
// context (internal/kernel) holds exactly one HAL for the hart it boots on.
type HAL interface {
	IRQMasker
	MMU
	CacheBarrier
	Architecture() CPUArch
	// CPUID returns an identifier for the current hart (spec §4.1's
	// "CPU-id" primitive). Always 0 until SMP is implemented (spec §9).
	CPUID() uint32
}
