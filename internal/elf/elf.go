// Package elf implements the minimal static ELF64 loader spec §6 names:
// load a static ELF64 binary at its linked addresses and return the entry
// point. No dynamic linking, no relocation, no PIE (spec §1 Non-goals:
// "Application binaries loaded via the ELF loader beyond the minimal
// loader contract").
//
// Grounded on the teacher's internal/asm/{amd64,arm64}/elf.go, which emits
// a standalone ELF64 executable by hand-filling the same header/program-
// header byte layout this package now parses — the inverse operation on
// the same wire format, using the same stdlib debug/elf constants
// (ET_EXEC, PT_LOAD, PF_*) the teacher validates against when emitting.
package elf

import (
	"debug/elf"
	"encoding/binary"

	"github.com/Acteus/vibos/internal/kerrno"
)

const (
	headerSize        = 64
	programHeaderSize = 56
	magic             = "\x7fELF"
)

// Segment is one PT_LOAD program header, already split into its
// file-backed and zero-filled (bss) portions.
type Segment struct {
	VAddr    uint64
	FileSize uint64
	MemSize  uint64
	Flags    elf.ProgFlag
	Data     []byte // FileSize bytes read from the image
}

// Image is a parsed, loadable ELF64 binary: its entry point and the
// loadable segments a caller must copy into place before jumping to Entry.
type Image struct {
	Entry    uint64
	Machine  elf.Machine
	Segments []Segment
}

// Parse validates data as a static ELF64 executable and extracts its
// PT_LOAD segments and entry point (spec: "load a static ELF64 at a fixed
// address, return entry point"). Segment virtual addresses are taken
// as-is from the file — this loader performs no relocation, so "fixed
// address" means whatever address the binary was linked for.
func Parse(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}
	if string(data[0:4]) != magic {
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}
	if data[4] != 2 { // ELFCLASS64
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}
	if data[5] != 1 { // ELFDATA2LSB
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}

	etype := elf.Type(binary.LittleEndian.Uint16(data[16:]))
	if etype != elf.ET_EXEC {
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}
	machine := elf.Machine(binary.LittleEndian.Uint16(data[18:]))
	switch machine {
	case elf.EM_X86_64, elf.EM_AARCH64:
	default:
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}

	entry := binary.LittleEndian.Uint64(data[24:])
	phoff := binary.LittleEndian.Uint64(data[32:])
	phentsize := binary.LittleEndian.Uint16(data[54:])
	phnum := binary.LittleEndian.Uint16(data[56:])

	if phentsize != programHeaderSize {
		return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
	}

	img := &Image{Entry: entry, Machine: machine}

	for i := uint16(0); i < phnum; i++ {
		off := phoff + uint64(i)*uint64(phentsize)
		if off+programHeaderSize > uint64(len(data)) {
			return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
		}
		ph := data[off : off+programHeaderSize]

		ptype := elf.ProgType(binary.LittleEndian.Uint32(ph[0:]))
		if ptype != elf.PT_LOAD {
			continue
		}

		flags := elf.ProgFlag(binary.LittleEndian.Uint32(ph[4:]))
		fileOff := binary.LittleEndian.Uint64(ph[8:])
		vaddr := binary.LittleEndian.Uint64(ph[16:])
		fileSize := binary.LittleEndian.Uint64(ph[32:])
		memSize := binary.LittleEndian.Uint64(ph[40:])

		if memSize < fileSize {
			return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
		}
		if fileOff+fileSize > uint64(len(data)) {
			return nil, kerrno.New("elf.Parse", kerrno.EINVAL)
		}

		img.Segments = append(img.Segments, Segment{
			VAddr:    vaddr,
			FileSize: fileSize,
			MemSize:  memSize,
			Flags:    flags,
			Data:     data[fileOff : fileOff+fileSize],
		})
	}

	return img, nil
}

// Memory is the destination address space a loader copies segments into
// (identity-mapped physical RAM in the real kernel). It is the WriteAt half
// of internal/memory/heap.Memory, so any heap.Memory implementation,
// including an in-process byte-slice fake, also satisfies it.
type Memory interface {
	WriteAt(p []byte, off int64) (int, error)
}

// Load parses data and copies every PT_LOAD segment into mem at its linked
// virtual address, zero-filling the bss tail (MemSize - FileSize) per the
// ELF loading convention. Returns the entry point a caller should transfer
// control to.
func Load(data []byte, mem Memory) (uint64, error) {
	img, err := Parse(data)
	if err != nil {
		return 0, err
	}
	for _, seg := range img.Segments {
		if _, err := mem.WriteAt(seg.Data, int64(seg.VAddr)); err != nil {
			return 0, kerrno.New("elf.Load", kerrno.EIO)
		}
		if bss := seg.MemSize - seg.FileSize; bss > 0 {
			zeros := make([]byte, bss)
			if _, err := mem.WriteAt(zeros, int64(seg.VAddr+seg.FileSize)); err != nil {
				return 0, kerrno.New("elf.Load", kerrno.EIO)
			}
		}
	}
	return img.Entry, nil
}
