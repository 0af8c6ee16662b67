package phys

import (
	"errors"
	"testing"

	"github.com/Acteus/vibos/internal/bootinfo"
	"github.com/Acteus/vibos/internal/kerrno"
)

func testHandoff() bootinfo.Handoff {
	return bootinfo.Handoff{
		MemoryMap: []bootinfo.MemoryMapEntry{
			{Start: 0, Length: FrameSize, Type: bootinfo.MemoryReserved},
			{Start: FrameSize, Length: 4 * FrameSize, Type: bootinfo.MemoryUsable},
		},
	}
}

func TestAllocFrameBumpsThroughUsableRegion(t *testing.T) {
	a := New(testHandoff())

	var got []uint64
	for i := 0; i < 4; i++ {
		addr, err := a.AllocFrame()
		if err != nil {
			t.Fatalf("AllocFrame: %v", err)
		}
		got = append(got, addr)
	}
	want := []uint64{FrameSize, 2 * FrameSize, 3 * FrameSize, 4 * FrameSize}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("frame %d = %#x, want %#x", i, got[i], w)
		}
	}
}

func TestAllocFrameExhaustion(t *testing.T) {
	a := New(testHandoff())
	for i := 0; i < 4; i++ {
		if _, err := a.AllocFrame(); err != nil {
			t.Fatalf("AllocFrame %d: %v", i, err)
		}
	}
	_, err := a.AllocFrame()
	if !errors.Is(err, kerrno.ENOMEM) {
		t.Fatalf("AllocFrame on exhausted pool = %v, want ENOMEM", err)
	}
}

func TestFreeFramePreferredOverBump(t *testing.T) {
	a := New(testHandoff())
	first, _ := a.AllocFrame()
	second, _ := a.AllocFrame()

	if err := a.FreeFrame(first); err != nil {
		t.Fatalf("FreeFrame: %v", err)
	}

	next, err := a.AllocFrame()
	if err != nil {
		t.Fatalf("AllocFrame: %v", err)
	}
	if next != first {
		t.Fatalf("AllocFrame after free = %#x, want freed frame %#x", next, first)
	}
	_ = second
}

func TestFreeFramePrefersLowestAddress(t *testing.T) {
	a := New(testHandoff())
	f1, _ := a.AllocFrame()
	f2, _ := a.AllocFrame()
	f3, _ := a.AllocFrame()

	// free in reverse order; allocator must still hand out the lowest first
	a.FreeFrame(f3)
	a.FreeFrame(f1)
	a.FreeFrame(f2)

	got, _ := a.AllocFrame()
	if got != f1 {
		t.Fatalf("AllocFrame = %#x, want lowest freed frame %#x", got, f1)
	}
}

func TestFreeFrameRejectsMisaligned(t *testing.T) {
	a := New(testHandoff())
	if err := a.FreeFrame(FrameSize + 1); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("FreeFrame misaligned = %v, want EINVAL", err)
	}
}

func TestFreeFrameRejectsOutOfRange(t *testing.T) {
	a := New(testHandoff())
	if err := a.FreeFrame(100 * FrameSize); !errors.Is(err, kerrno.EINVAL) {
		t.Fatalf("FreeFrame out-of-range = %v, want EINVAL", err)
	}
}

func TestTotalAndFreeFrameCounts(t *testing.T) {
	a := New(testHandoff())
	if a.TotalFrames() != 4 {
		t.Fatalf("TotalFrames = %d, want 4", a.TotalFrames())
	}
	if a.FreeFrames() != 4 {
		t.Fatalf("FreeFrames = %d, want 4", a.FreeFrames())
	}
	a.AllocFrame()
	if a.FreeFrames() != 3 {
		t.Fatalf("FreeFrames after one alloc = %d, want 3", a.FreeFrames())
	}
}

func TestReservedRegionNeverAllocated(t *testing.T) {
	a := New(testHandoff())
	for i := 0; i < 4; i++ {
		addr, err := a.AllocFrame()
		if err != nil {
			t.Fatalf("AllocFrame: %v", err)
		}
		if addr == 0 {
			t.Fatal("allocator must never hand out a frame from the reserved region at address 0")
		}
	}
}
