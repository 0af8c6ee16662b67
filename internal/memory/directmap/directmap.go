// Package directmap implements the production backing store for
// internal/memory/heap.Memory and internal/memory/virt.Memory: a fixed
// offset added to every physical address, reading and writing through
// internal/arch/reg's raw accessors. Every MMIO peripheral driver in this
// kernel (GICv3, APIC, PL011, 16550) already goes through internal/arch/reg
// instead of hand-rolled unsafe.Pointer arithmetic; RAM access during boot
// is the same kind of raw, unchecked load/store, so it is built on the same
// primitive rather than a second one.
//
// internal/bootinfo's Handoff contract promises "low memory is identity
// mapped before the stub jumps into the core" (spec §6), so Base is 0 on a
// kernel entered directly at its identity-mapped load address; Base is only
// nonzero for a kernel relocated to a fixed higher-half virtual base, a
// detail internal/kernel's caller (the boot stub, out of scope) decides.
package directmap

import "github.com/Acteus/vibos/internal/arch/reg"

// RAM is a direct-mapped view of physical memory starting at Base.
type RAM struct {
	Base uint64
}

// ReadAt satisfies internal/memory/heap.Memory.
func (r RAM) ReadAt(p []byte, off int64) (int, error) {
	addr := r.Base + uint64(off)
	for i := range p {
		p[i] = reg.Read8(addr + uint64(i))
	}
	return len(p), nil
}

// WriteAt satisfies internal/memory/heap.Memory.
func (r RAM) WriteAt(p []byte, off int64) (int, error) {
	addr := r.Base + uint64(off)
	for i, b := range p {
		reg.Write8(addr+uint64(i), b)
	}
	return len(p), nil
}

// Read64 satisfies internal/memory/virt.Memory.
func (r RAM) Read64(addr uint64) uint64 { return reg.Read64(r.Base + addr) }

// Write64 satisfies internal/memory/virt.Memory.
func (r RAM) Write64(addr uint64, val uint64) { reg.Write64(r.Base+addr, val) }
