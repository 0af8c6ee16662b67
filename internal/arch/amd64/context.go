// Package amd64 implements the arch.HAL contract for 64-bit x86 (spec §4.1,
// §4.2 APIC branch, §4.5 PAT/MTRR branch). Register layouts are grounded on
// the general-purpose/control-register field order real amd64 hardware (and
// KVM's ABI) expose, not an arbitrary struct shape.
package amd64

// Context is the saved state of one task on amd64: general-purpose
// registers, instruction pointer, flags, and the segment/control registers
// a context switch must preserve across tasks sharing one address space.
// Field order mirrors the GPR layout used by hypervisor register ABIs
// (Rax..R15, Rip, Rflags) so a debugger dumping this struct reads like a
// standard amd64 register dump.
type Context struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	Rdi, Rsi, Rbp, Rbx uint64
	Rdx, Rcx, Rax      uint64

	Rip    uint64
	Cs     uint64
	Rflags uint64
	Rsp    uint64
	Ss     uint64

	Cr3 uint64 // page-table root physical address for this task
}

const (
	rflagsIF  = 1 << 9 // interrupt-enable flag
	rflagsRes = 1 << 1 // bit 1 is always set on real hardware
)

// PC returns the saved instruction pointer.
func (c *Context) PC() uint64 { return c.Rip }

// SP returns the saved stack pointer.
func (c *Context) SP() uint64 { return c.Rsp }

// Init zeroes ctx and prepares it to begin execution at entry on stackTop
// with arg in Rdi (the amd64 SysV first-argument register), kernel code/
// stack segments, and IRQs masked (spec §4.1 context_init: "new task starts
// with interrupts disabled until it explicitly enables them").
func (c *Context) Init(entry, stackTop, arg uintptr) {
	*c = Context{}
	c.Rip = uint64(entry)
	c.Rsp = uint64(stackTop)
	c.Rdi = uint64(arg)
	c.Cs = kernelCS
	c.Ss = kernelSS
	c.Rflags = rflagsRes // IF clear: IRQs start masked
}

const (
	kernelCS = 0x08
	kernelSS = 0x10
)
