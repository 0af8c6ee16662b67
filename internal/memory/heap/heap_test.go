package heap

import (
	"errors"
	"testing"

	"github.com/Acteus/vibos/internal/bootinfo"
	"github.com/Acteus/vibos/internal/kerrno"
	"github.com/Acteus/vibos/internal/memory/phys"
)

// byteMemory is a flat byte slice standing in for identity-mapped RAM.
type byteMemory struct {
	buf []byte
}

func newByteMemory(size int) *byteMemory { return &byteMemory{buf: make([]byte, size)} }

func (m *byteMemory) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func (m *byteMemory) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.buf[off:], p), nil
}

func newTestHeap(frameCount int) (*Heap, *phys.Allocator) {
	alloc := phys.New(bootinfo.Handoff{MemoryMap: []bootinfo.MemoryMapEntry{
		{Start: 0, Length: uint64(frameCount) * phys.FrameSize, Type: bootinfo.MemoryUsable},
	}})
	mem := newByteMemory(frameCount * phys.FrameSize)
	return New(alloc, mem), alloc
}

func TestKmallocRoundsUpToClass(t *testing.T) {
	h, _ := newTestHeap(4)
	addr, err := h.Kmalloc(10)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	// 10 bytes plus the 8-byte header need 18, which rounds up to minClass.
	if class, err := h.readHeader(addr); err != nil || class != minClass {
		t.Fatalf("class = %d (err %v), want %d", class, err, minClass)
	}
	if addr%8 != 0 {
		t.Fatalf("addr %#x not 8-byte aligned", addr)
	}
}

func TestKzallocZeroesBlock(t *testing.T) {
	h, _ := newTestHeap(4)
	addr, err := h.Kzalloc(64)
	if err != nil {
		t.Fatalf("Kzalloc: %v", err)
	}
	var buf [64]byte
	h.mem.ReadAt(buf[:], int64(addr))
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestKfreeReusesBlock(t *testing.T) {
	h, _ := newTestHeap(4)
	a1, _ := h.Kmalloc(32)
	if err := h.Kfree(a1); err != nil {
		t.Fatalf("Kfree: %v", err)
	}
	a2, err := h.Kmalloc(32)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected freed block %#x to be reused, got %#x", a1, a2)
	}
}

func TestKmallocCarvesNewFrameWhenFreeListEmpty(t *testing.T) {
	h, alloc := newTestHeap(4)
	before := alloc.FreeFrames()
	if _, err := h.Kmalloc(16); err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	if alloc.FreeFrames() != before-1 {
		t.Fatalf("expected one frame to be carved, FreeFrames = %d, want %d", alloc.FreeFrames(), before-1)
	}
}

func TestKmallocDistinctAllocationsDoNotOverlap(t *testing.T) {
	h, _ := newTestHeap(4)
	seen := map[uint64]bool{}
	for i := 0; i < 50; i++ {
		addr, err := h.Kmalloc(40)
		if err != nil {
			t.Fatalf("Kmalloc iteration %d: %v", i, err)
		}
		if seen[addr] {
			t.Fatalf("address %#x handed out twice without a Kfree", addr)
		}
		seen[addr] = true
	}
}

func TestKmallocTooLargeReturnsENOMEM(t *testing.T) {
	h, _ := newTestHeap(4)
	if _, err := h.Kmalloc(phys.FrameSize); !errors.Is(err, kerrno.ENOMEM) {
		t.Fatalf("Kmalloc(FrameSize) = %v, want ENOMEM", err)
	}
}

func TestKfreeUnknownHeaderReturnsEINVAL(t *testing.T) {
	h, _ := newTestHeap(4)
	if err := h.Kfree(4096); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("Kfree on bogus address = %v, want EINVAL", err)
	}
}

func TestKreallocGrowsAndPreservesContents(t *testing.T) {
	h, _ := newTestHeap(4)
	addr, err := h.Kmalloc(16)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	want := []byte("hello, heap!1234")
	if _, err := h.mem.WriteAt(want, int64(addr)); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	grown, err := h.Krealloc(addr, 200)
	if err != nil {
		t.Fatalf("Krealloc: %v", err)
	}
	if grown == addr {
		t.Fatalf("Krealloc to a larger class returned the same address")
	}
	got := make([]byte, len(want))
	if _, err := h.mem.ReadAt(got, int64(grown)); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Krealloc contents = %q, want %q", got, want)
	}

	// The old block must have been freed back to its class's free list.
	again, err := h.Kmalloc(16)
	if err != nil {
		t.Fatalf("Kmalloc after Krealloc: %v", err)
	}
	if again != addr {
		t.Fatalf("expected old block %#x to be reused after Krealloc, got %#x", addr, again)
	}
}

func TestKreallocSameClassReturnsSameAddress(t *testing.T) {
	h, _ := newTestHeap(4)
	addr, err := h.Kmalloc(16)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	same, err := h.Krealloc(addr, 20)
	if err != nil {
		t.Fatalf("Krealloc: %v", err)
	}
	if same != addr {
		t.Fatalf("Krealloc within the same class = %#x, want %#x", same, addr)
	}
}

func TestKreallocTooLargeReturnsENOMEM(t *testing.T) {
	h, _ := newTestHeap(4)
	addr, err := h.Kmalloc(16)
	if err != nil {
		t.Fatalf("Kmalloc: %v", err)
	}
	if _, err := h.Krealloc(addr, phys.FrameSize); !errors.Is(err, kerrno.ENOMEM) {
		t.Fatalf("Krealloc(FrameSize) = %v, want ENOMEM", err)
	}
}
