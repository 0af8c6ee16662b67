package kapi

import (
	"encoding/binary"
	"testing"

	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/bootinfo"
	"github.com/Acteus/vibos/internal/fat32"
	"github.com/Acteus/vibos/internal/klog"
	"github.com/Acteus/vibos/internal/memory/heap"
	"github.com/Acteus/vibos/internal/memory/phys"
	"github.com/Acteus/vibos/internal/task"
	"github.com/Acteus/vibos/internal/vfs"
)

// fakeContext/fakeSwitcher mirror internal/task's own host-side test
// doubles: the scheduler never inspects context fields directly, only
// hands pointers through to the injected switcher.
type fakeContext struct{ pc, sp uint64 }

func (c *fakeContext) PC() uint64 { return c.pc }
func (c *fakeContext) SP() uint64 { return c.sp }

type fakeSwitcher struct{}

func (fakeSwitcher) Switch(out, in *fakeContext)                    {}
func (fakeSwitcher) Init(ctx *fakeContext, entry, stackTop, arg uintptr) {
	*ctx = fakeContext{pc: uint64(entry), sp: uint64(stackTop)}
}

type fakeIRQMasker struct{ enabled bool }

func (f *fakeIRQMasker) IRQEnable()          { f.enabled = true }
func (f *fakeIRQMasker) IRQDisable()         { f.enabled = false }
func (f *fakeIRQMasker) IRQSave() bool       { was := f.enabled; f.enabled = false; return was }
func (f *fakeIRQMasker) IRQRestore(was bool) { f.enabled = was }
func (f *fakeIRQMasker) IRQEnabled() bool    { return f.enabled }

type byteMemory struct{ buf []byte }

func (m *byteMemory) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.buf[off:]), nil }
func (m *byteMemory) WriteAt(p []byte, off int64) (int, error) { return copy(m.buf[off:], p), nil }

func newTestHeap(frameCount int) *heap.Heap {
	alloc := phys.New(bootinfo.Handoff{MemoryMap: []bootinfo.MemoryMapEntry{
		{Start: 0, Length: uint64(frameCount) * phys.FrameSize, Type: bootinfo.MemoryUsable},
	}})
	return heap.New(alloc, &byteMemory{buf: make([]byte, frameCount*phys.FrameSize)})
}

func newTestVFS(t *testing.T) *vfs.VFS {
	t.Helper()
	const sectorSize = 512
	const dataClusters, sectorsPerCluster, numFATs = 64, uint32(1), uint8(2)
	reserved := uint32(1)
	fatSize := (dataClusters+2)*4/sectorSize + 1
	dataStart := reserved + uint32(numFATs)*fatSize
	totalSectors := dataStart + dataClusters*sectorsPerCluster

	img := make([]byte, totalSectors*sectorSize)
	buf := make([]byte, fat32.BootSectorSize)
	binary.LittleEndian.PutUint16(buf[0x0B:], sectorSize)
	buf[0x0D] = byte(sectorsPerCluster)
	binary.LittleEndian.PutUint16(buf[0x0E:], uint16(reserved))
	buf[0x10] = numFATs
	binary.LittleEndian.PutUint32(buf[0x20:], totalSectors)
	binary.LittleEndian.PutUint32(buf[0x24:], fatSize)
	binary.LittleEndian.PutUint32(buf[0x2C:], 2)
	binary.LittleEndian.PutUint16(buf[0x1FE:], 0xAA55)
	copy(img[0:fat32.BootSectorSize], buf)

	for i := uint8(0); i < numFATs; i++ {
		fatOff := (reserved + uint32(i)*fatSize) * sectorSize
		binary.LittleEndian.PutUint32(img[fatOff+0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(img[fatOff+4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(img[fatOff+8:], 0x0FFFFFFF)
	}

	dev := &blockDevice{data: img, sectorSize: sectorSize}
	v := vfs.New()
	if err := v.RegisterFileSystemType(vfs.FAT32Type{}); err != nil {
		t.Fatalf("RegisterFileSystemType: %v", err)
	}
	if err := v.Mount("/", "fat32", dev, 0); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v
}

// blockDevice is a minimal in-memory block.Device backing a formatted
// FAT32 image, mirroring internal/vfs's own test fixture.
type blockDevice struct {
	data       []byte
	sectorSize uint32
}

func (d *blockDevice) ReadAt(sector uint64, count uint32, buf []byte) error {
	off := sector * uint64(d.sectorSize)
	copy(buf, d.data[off:off+uint64(len(buf))])
	return nil
}

func (d *blockDevice) WriteAt(sector uint64, count uint32, buf []byte) error {
	off := sector * uint64(d.sectorSize)
	copy(d.data[off:off+uint64(len(buf))], buf)
	return nil
}

func (d *blockDevice) Flush() error { return nil }

func (d *blockDevice) Info() block.Info {
	return block.Info{SectorSize: d.sectorSize, SectorCount: uint64(len(d.data)) / uint64(d.sectorSize)}
}

func newTestTable(t *testing.T) (*Table[fakeContext], *task.Scheduler[fakeContext]) {
	t.Helper()
	h := newTestHeap(4)
	v := newTestVFS(t)
	sched := task.NewScheduler[fakeContext](fakeSwitcher{})
	irq := &fakeIRQMasker{}
	return Build[fakeContext](h, v, sched, irq), sched
}

func TestBuildWiresKmalloc(t *testing.T) {
	tbl, _ := newTestTable(t)
	addr, err := tbl.Kmalloc(64)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	if err := tbl.Kfree(addr); err != nil {
		t.Fatalf("Kfree: %v", err)
	}
}

func TestBuildWiresKrealloc(t *testing.T) {
	tbl, _ := newTestTable(t)
	addr, err := tbl.Kmalloc(16)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	grown, err := tbl.Krealloc(addr, 200)
	if err != nil {
		t.Fatalf("Krealloc: %v", err)
	}
	if err := tbl.Kfree(grown); err != nil {
		t.Fatalf("Kfree: %v", err)
	}
}

func TestBuildWiresVFSOpenAndReadWrite(t *testing.T) {
	tbl, _ := newTestTable(t)
	f, err := tbl.VFSOpen("/hello.txt", vfs.OWRONLY|vfs.OCREAT, 0)
	if err != nil {
		t.Fatalf("VFSOpen: %v", err)
	}
	if _, err := tbl.VFSWrite(f, []byte("hi")); err != nil {
		t.Fatalf("VFSWrite: %v", err)
	}
	if err := tbl.VFSClose(f); err != nil {
		t.Fatalf("VFSClose: %v", err)
	}

	f2, err := tbl.VFSOpen("/hello.txt", vfs.ORDONLY, 0)
	if err != nil {
		t.Fatalf("VFSOpen read: %v", err)
	}
	buf := make([]byte, 2)
	n, err := tbl.VFSRead(f2, buf)
	if err != nil {
		t.Fatalf("VFSRead: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("VFSRead = %q, want %q", buf[:n], "hi")
	}
}

func TestBuildWiresTaskCreateAndYield(t *testing.T) {
	tbl, _ := newTestTable(t)
	spawned := tbl.TaskCreate(0x1000, 0, 3, 0)
	if spawned == nil {
		t.Fatalf("TaskCreate returned nil")
	}
	tbl.TaskYield() // must not panic with no other task ready
}

func TestBuildWiresPrintk(t *testing.T) {
	tbl, _ := newTestTable(t)
	before := len(klog.Recent(1000))
	tbl.Printk(klog.Info, "kapi smoke test %d", 1)
	after := len(klog.Recent(1000))
	if after <= before {
		t.Fatalf("Printk did not record a log entry")
	}
}
