package virt

import "github.com/Acteus/vibos/internal/arch/arm64"

const (
	deValid = 1 << 0
	deTable = 1 << 1 // "table" at levels 0-2, "page" at level 3 - same bit
	deAF    = 1 << 10
	deNG    = 1 << 11
	deSH    = 0b11 << 8 // inner shareable
	dePXN   = 1 << 53
	deUXN   = 1 << 54

	deAttrIdxShift = 2
	deAPShift      = 6

	apRW_EL1Only = 0b00
	apRW_EL1EL0  = 0b01
	apRO_EL1Only = 0b10
	apRO_EL1EL0  = 0b11

	outputAddrMask = 0x0000_FFFF_FFFF_F000
)

// ARM64Encoder implements Encoder for AArch64 stage-1 4 KiB translation,
// assuming internal/arch/arm64.DefaultMAIR has been programmed into
// MAIR_EL1 so AttrIndx can select write-back/non-cacheable/device
// attributes directly by index.
type ARM64Encoder struct{}

var _ Encoder = ARM64Encoder{}

func (ARM64Encoder) EncodeTable(phys uint64) uint64 {
	return (phys & outputAddrMask) | deValid | deTable
}

func (ARM64Encoder) EncodeLeaf(phys uint64, attrs Attrs) uint64 {
	pte := (phys & outputAddrMask) | deValid | deTable | deAF | deSH
	pte |= uint64(attrMAIRIndex(attrs.Cache)) << deAttrIdxShift

	switch {
	case attrs.Writable && attrs.UserAccess:
		pte |= apRW_EL1EL0 << deAPShift
	case attrs.Writable && !attrs.UserAccess:
		pte |= apRW_EL1Only << deAPShift
	case !attrs.Writable && attrs.UserAccess:
		pte |= apRO_EL1EL0 << deAPShift
	default:
		pte |= apRO_EL1Only << deAPShift
	}
	if !attrs.Executable {
		pte |= dePXN | deUXN
	}
	return pte
}

func attrMAIRIndex(c CacheType) int {
	switch c {
	case WriteCombine:
		return arm64.MairNormalNC
	case Uncacheable:
		return arm64.MairDeviceNGnRnE
	default:
		return arm64.MairNormalWB
	}
}

func (ARM64Encoder) Present(pte uint64) bool { return pte&deValid != 0 }

func (ARM64Encoder) IsLeaf(pte uint64, level int) bool { return level == levels-1 }

func (ARM64Encoder) PhysAddr(pte uint64) uint64 { return pte & outputAddrMask }

func (ARM64Encoder) DecodeAttrs(pte uint64) Attrs {
	ap := (pte >> deAPShift) & 0b11
	a := Attrs{
		Writable:   ap == apRW_EL1Only || ap == apRW_EL1EL0,
		UserAccess: ap == apRW_EL1EL0 || ap == apRO_EL1EL0,
		Executable: pte&(dePXN|deUXN) == 0,
	}
	switch int((pte >> deAttrIdxShift) & 0b111) {
	case arm64.MairDeviceNGnRnE:
		a.Cache = Uncacheable
	case arm64.MairNormalNC:
		a.Cache = WriteCombine
	default:
		a.Cache = WriteBack
	}
	return a
}
