package elf

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Acteus/vibos/internal/kerrno"
)

// buildTestELF assembles a minimal single-PT_LOAD static ELF64 executable,
// the mirror image of the teacher's fillELFHeader/fillProgramHeader.
func buildTestELF(machine elf.Machine, entry, vaddr uint64, code []byte, bssSize uint64) []byte {
	const headerLimit = headerSize + programHeaderSize
	buf := make([]byte, headerLimit+len(code))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	binary.LittleEndian.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(buf[18:], uint16(machine))
	binary.LittleEndian.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint64(buf[24:], entry)
	binary.LittleEndian.PutUint64(buf[32:], headerSize)
	binary.LittleEndian.PutUint16(buf[54:], programHeaderSize)
	binary.LittleEndian.PutUint16(buf[56:], 1)

	ph := buf[headerSize:headerLimit]
	binary.LittleEndian.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	binary.LittleEndian.PutUint64(ph[8:], headerLimit)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], vaddr)
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(code))+bssSize)
	binary.LittleEndian.PutUint64(ph[48:], 0x1000)

	copy(buf[headerLimit:], code)
	return buf
}

func TestParseValidExecutable(t *testing.T) {
	code := []byte{0x90, 0x90, 0xc3}
	data := buildTestELF(elf.EM_X86_64, 0x401000, 0x401000, code, 0)

	img, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Entry != 0x401000 {
		t.Fatalf("Entry = %#x, want 0x401000", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("Segments = %d, want 1", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.VAddr != 0x401000 || seg.FileSize != uint64(len(code)) {
		t.Fatalf("segment = %+v", seg)
	}
	if string(seg.Data) != string(code) {
		t.Fatalf("segment data = %v, want %v", seg.Data, code)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildTestELF(elf.EM_X86_64, 0x401000, 0x401000, []byte{0x90}, 0)
	data[0] = 0x00
	if _, err := Parse(data); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Parse bad magic = %v, want EINVAL", err)
	}
}

func TestParseRejectsNonExecutableType(t *testing.T) {
	data := buildTestELF(elf.EM_X86_64, 0x401000, 0x401000, []byte{0x90}, 0)
	binary.LittleEndian.PutUint16(data[16:], uint16(elf.ET_DYN))
	if _, err := Parse(data); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Parse ET_DYN = %v, want EINVAL", err)
	}
}

func TestParseRejectsUnknownMachine(t *testing.T) {
	data := buildTestELF(elf.EM_X86_64, 0x401000, 0x401000, []byte{0x90}, 0)
	binary.LittleEndian.PutUint16(data[18:], uint16(elf.EM_386))
	if _, err := Parse(data); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Parse EM_386 = %v, want EINVAL", err)
	}
}

func TestParseAcceptsAArch64(t *testing.T) {
	data := buildTestELF(elf.EM_AARCH64, 0x40080000, 0x40080000, []byte{0x1f, 0x20, 0x03, 0xd5}, 0)
	img, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Machine != elf.EM_AARCH64 {
		t.Fatalf("Machine = %v, want EM_AARCH64", img.Machine)
	}
}

func TestParseRejectsTruncatedProgramHeader(t *testing.T) {
	data := buildTestELF(elf.EM_X86_64, 0x401000, 0x401000, []byte{0x90}, 0)
	data = data[:headerSize+10]
	if _, err := Parse(data); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Parse truncated = %v, want EINVAL", err)
	}
}

// fakeMemory is an in-memory address space for Load tests.
type fakeMemory struct {
	data []byte
}

func (m *fakeMemory) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func TestLoadCopiesSegmentAndZeroesBSS(t *testing.T) {
	code := []byte{0xde, 0xad, 0xbe, 0xef}
	data := buildTestELF(elf.EM_X86_64, 0x2000, 0x2000, code, 4)

	mem := &fakeMemory{}
	entry, err := Load(data, mem)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entry != 0x2000 {
		t.Fatalf("entry = %#x, want 0x2000", entry)
	}
	if string(mem.data[0x2000:0x2004]) != string(code) {
		t.Fatalf("loaded code mismatch: %v", mem.data[0x2000:0x2004])
	}
	for i := 0x2004; i < 0x2008; i++ {
		if mem.data[i] != 0 {
			t.Fatalf("bss byte at %#x = %#x, want 0", i, mem.data[i])
		}
	}
}

func TestLoadRejectsInvalidImage(t *testing.T) {
	if _, err := Load([]byte{1, 2, 3}, &fakeMemory{}); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Load on garbage = %v, want EINVAL", err)
	}
}
