// Package reg provides typed, bounds-free memory-mapped I/O accessors, the
// same minimal primitive tamago's internal/reg exposes for bare-metal
// register access: a raw address plus a width, nothing else. Every MMIO
// peripheral driver in this kernel (GICv3, APIC/IOAPIC, PL011, 16550) is
// built on these instead of repeating unsafe.Pointer arithmetic per driver.
package reg

import "unsafe"

// Read32 loads a 32-bit little-endian value from a memory-mapped register
// at the given physical/virtual address (identity-mapped device regions
// mean the two coincide for this kernel, per spec §4.5's device-mapping
// policy).
func Read32(addr uint64) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

// Write32 stores a 32-bit little-endian value to a memory-mapped register.
func Write32(addr uint64, val uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = val
}

// Read64 loads a 64-bit value, used by GICv3 redistributor registers wider
// than 32 bits.
func Read64(addr uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(addr)))
}

// Write64 stores a 64-bit value.
func Write64(addr uint64, val uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(addr))) = val
}

// Read8 loads a single byte, used by the 16550/PL011 data registers.
func Read8(addr uint64) uint8 {
	return *(*uint8)(unsafe.Pointer(uintptr(addr)))
}

// Write8 stores a single byte.
func Write8(addr uint64, val uint8) {
	*(*uint8)(unsafe.Pointer(uintptr(addr))) = val
}

// SetBits32 sets the bits in mask, leaving the rest of the register
// unchanged: the common "enable bit N" pattern in GICv3/APIC/UART init.
func SetBits32(addr uint64, mask uint32) {
	Write32(addr, Read32(addr)|mask)
}

// ClearBits32 clears the bits in mask, leaving the rest unchanged.
func ClearBits32(addr uint64, mask uint32) {
	Write32(addr, Read32(addr)&^mask)
}

// WaitSet32 busy-waits until all bits in mask are set, used by GICv3
// redistributor wake-up (waiting for ChildrenAsleep to clear) and UART
// status polling. Returns after at most n iterations to keep this a spin
// with a bound rather than a true infinite loop; callers in control paths
// that may legitimately wait longer loop this themselves.
func WaitSet32(addr uint64, mask uint32, n int) bool {
	for i := 0; i < n; i++ {
		if Read32(addr)&mask == mask {
			return true
		}
	}
	return false
}

// WaitClear32 busy-waits until all bits in mask are clear.
func WaitClear32(addr uint64, mask uint32, n int) bool {
	for i := 0; i < n; i++ {
		if Read32(addr)&mask == 0 {
			return true
		}
	}
	return false
}
