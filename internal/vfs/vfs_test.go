package vfs

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/fat32"
	"github.com/Acteus/vibos/internal/kerrno"
)

// memDevice is a minimal in-memory block.Device, just enough to back a
// freshly formatted FAT32 image for VFS-level tests.
type memDevice struct {
	data       []byte
	sectorSize uint32
}

func (m *memDevice) ReadAt(sector uint64, count uint32, buf []byte) error {
	off := sector * uint64(m.sectorSize)
	copy(buf, m.data[off:off+uint64(len(buf))])
	return nil
}

func (m *memDevice) WriteAt(sector uint64, count uint32, buf []byte) error {
	off := sector * uint64(m.sectorSize)
	copy(m.data[off:off+uint64(len(buf))], buf)
	return nil
}

func (m *memDevice) Flush() error { return nil }

func (m *memDevice) Info() block.Info {
	return block.Info{SectorSize: m.sectorSize, SectorCount: uint64(len(m.data)) / uint64(m.sectorSize)}
}

// formatFAT32Image builds a minimal valid FAT32 image, mirroring
// internal/fat32's own test fixture (kept package-local since that helper
// is unexported in fat32's _test.go file).
func formatFAT32Image(dataClusters, sectorsPerCluster uint32, numFATs uint8) *memDevice {
	const sectorSize = 512
	reserved := uint32(1)
	fatSize := (dataClusters+2)*4/sectorSize + 1
	dataStart := reserved + uint32(numFATs)*fatSize
	totalSectors := dataStart + dataClusters*sectorsPerCluster

	img := &memDevice{data: make([]byte, totalSectors*sectorSize), sectorSize: sectorSize}

	buf := make([]byte, fat32.BootSectorSize)
	binary.LittleEndian.PutUint16(buf[0x0B:], sectorSize)
	buf[0x0D] = byte(sectorsPerCluster)
	binary.LittleEndian.PutUint16(buf[0x0E:], uint16(reserved))
	buf[0x10] = numFATs
	binary.LittleEndian.PutUint16(buf[0x16:], 0)
	binary.LittleEndian.PutUint32(buf[0x20:], totalSectors)
	binary.LittleEndian.PutUint32(buf[0x24:], fatSize)
	binary.LittleEndian.PutUint32(buf[0x2C:], 2)
	binary.LittleEndian.PutUint16(buf[0x1FE:], 0xAA55)
	copy(img.data[0:fat32.BootSectorSize], buf)

	for i := uint8(0); i < numFATs; i++ {
		fatOff := (reserved + uint32(i)*fatSize) * sectorSize
		binary.LittleEndian.PutUint32(img.data[fatOff+0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(img.data[fatOff+4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(img.data[fatOff+8:], 0x0FFFFFFF)
	}

	return img
}

func newTestVFS(t *testing.T) *VFS {
	t.Helper()
	dev := formatFAT32Image(64, 1, 2)
	v := New()
	if err := v.RegisterFileSystemType(FAT32Type{}); err != nil {
		t.Fatalf("RegisterFileSystemType: %v", err)
	}
	if err := v.Mount("/", "fat32", dev, 0); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v
}

func TestMountRegistersRootDentry(t *testing.T) {
	v := newTestVFS(t)
	f, err := v.Open("/", ORDONLY, 0)
	if err != nil {
		t.Fatalf("Open(\"/\"): %v", err)
	}
	_ = f
}

func TestOpenWithCreateThenWriteAndRead(t *testing.T) {
	v := newTestVFS(t)

	f, err := v.Open("/hello.txt", OWRONLY|OCREAT, 0)
	if err != nil {
		t.Fatalf("Open with O_CREAT: %v", err)
	}
	if _, err := f.Write([]byte("hello vfs")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	f2, err := v.Open("/hello.txt", ORDONLY, 0)
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	buf := make([]byte, 9)
	n, err := f2.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello vfs" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello vfs")
	}
}

func TestOpenMissingWithoutCreateReturnsENOENT(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.Open("/nope.txt", ORDONLY, 0); !errors.Is(err, kerrno.ENOENT) {
		t.Fatalf("Open missing file = %v, want ENOENT", err)
	}
}

func TestMkdirAndResolveNestedPath(t *testing.T) {
	v := newTestVFS(t)
	if err := v.Mkdir("/sub", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	f, err := v.Open("/sub/nested.txt", OWRONLY|OCREAT, 0)
	if err != nil {
		t.Fatalf("Open nested path: %v", err)
	}
	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestReaddirListsCreatedEntries(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.Open("/a.txt", OWRONLY|OCREAT, 0); err != nil {
		t.Fatalf("Open a.txt: %v", err)
	}
	if _, err := v.Open("/b.txt", OWRONLY|OCREAT, 0); err != nil {
		t.Fatalf("Open b.txt: %v", err)
	}

	root, err := v.Open("/", ORDONLY, 0)
	if err != nil {
		t.Fatalf("Open /: %v", err)
	}
	var names []string
	if err := v.Readdir(root, nil, func(_ any, name string, _ uint64, _ DirEntryType) int {
		names = append(names, name)
		return 0
	}); err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("Readdir found %v, want 2 entries", names)
	}
}

func TestReaddirHaltsOnNonZeroReturn(t *testing.T) {
	v := newTestVFS(t)
	v.Open("/a.txt", OWRONLY|OCREAT, 0)
	v.Open("/b.txt", OWRONLY|OCREAT, 0)
	v.Open("/c.txt", OWRONLY|OCREAT, 0)

	root, _ := v.Open("/", ORDONLY, 0)
	calls := 0
	v.Readdir(root, nil, func(_ any, name string, _ uint64, _ DirEntryType) int {
		calls++
		return 1
	})
	if calls != 1 {
		t.Fatalf("Readdir called fill %d times, want exactly 1 (halt on first non-zero)", calls)
	}
}

func TestRenameMovesEntry(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.Open("/old.txt", OWRONLY|OCREAT, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := v.Rename("/old.txt", "/new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := v.Open("/new.txt", ORDONLY, 0); err != nil {
		t.Fatalf("Open renamed file: %v", err)
	}
	if _, err := v.Open("/old.txt", ORDONLY, 0); !errors.Is(err, kerrno.ENOENT) {
		t.Fatalf("Open old name after rename = %v, want ENOENT", err)
	}
}

func TestUnlinkRemovesEntry(t *testing.T) {
	v := newTestVFS(t)
	if _, err := v.Open("/doomed.txt", OWRONLY|OCREAT, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := v.Unlink("/doomed.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := v.Open("/doomed.txt", ORDONLY, 0); !errors.Is(err, kerrno.ENOENT) {
		t.Fatalf("Open after Unlink = %v, want ENOENT", err)
	}
}

func TestOpenTruncResetsSize(t *testing.T) {
	v := newTestVFS(t)
	f, _ := v.Open("/t.txt", OWRONLY|OCREAT, 0)
	f.Write([]byte("some data"))
	f.Close()

	f2, err := v.Open("/t.txt", OWRONLY|OTRUNC, 0)
	if err != nil {
		t.Fatalf("Open with O_TRUNC: %v", err)
	}
	_ = f2

	f3, _ := v.Open("/t.txt", ORDONLY, 0)
	buf := make([]byte, 16)
	n, _ := f3.Read(buf)
	if n != 0 {
		t.Fatalf("read %d bytes after O_TRUNC, want 0", n)
	}
}
