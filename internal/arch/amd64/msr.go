package amd64

// MSR indices the HAL programs directly (spec §4.5's PAT sequencing, plus
// the EFER/APIC-base registers interrupt init touches).
const (
	MSREfer       = 0xC0000080
	MSRApicBase   = 0x0000001B
	MSRPat        = 0x00000277
	MSRFSBase     = 0xC0000100
	MSRGSBase     = 0xC0000101
	MSRKernelGS   = 0xC0000102
)

// readMSR/writeMSR are implemented in msr_amd64.s: RDMSR/WRMSR have no
// equivalent in any library in the ecosystem (they are ring-0-only
// instructions with no syscall wrapper), so this is the one place the HAL
// drops to assembly rather than a Go or third-party API.
//
//go:noescape
func readMSR(reg uint32) uint64

//go:noescape
func writeMSR(reg uint32, val uint64)

// ReadMSR reads one model-specific register by index.
func ReadMSR(reg uint32) uint64 { return readMSR(reg) }

// WriteMSR writes one model-specific register by index.
func WriteMSR(reg uint32, val uint64) { writeMSR(reg, val) }

// ReadPAT reads the Page Attribute Table MSR. internal/memory/virt does not
// call it: its amd64 encoder assumes DefaultPAT is already loaded.
func ReadPAT() uint64 { return readMSR(MSRPat) }

// WritePAT programs the Page Attribute Table MSR. Callers must have all
// harts halted or interrupts disabled, per the Intel-documented sequence
// spec §4.5 cites (load-new-PAT races with an in-flight speculative fetch
// otherwise).
func WritePAT(val uint64) { writeMSR(MSRPat, val) }

// DefaultPAT is the PAT layout internal/memory/virt's amd64 encoder assumes:
// entries 0-3 keep the architectural power-on defaults (WB, WT, UC-, UC),
// and entry 4 is reprogrammed from its power-on WB default to write-
// combining so a leaf PTE can reach it by setting only the PAT bit (bit 7)
// while leaving PCD/PWT at their write-back encoding (0,0).
// Byte layout is PA7..PA0: 00(UC-reserved-default) 07(UC-) 04(WT) 01(WC,
// reprogrammed from the power-on 06/WB) 00(UC) 07(UC-) 04(WT) 06(WB).
const DefaultPAT = 0x00_07_04_01_00_07_04_06

