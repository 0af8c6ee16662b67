// Package heap implements the kernel byte allocator (spec §4.6): a
// power-of-two free-list carved from frames handed out by
// internal/memory/phys. kmalloc/kzalloc/kfree never touch Go's own
// GC-backed allocator — every byte they hand out comes from a frame this
// package owns outright, the same separation internal/memory/phys keeps
// from Go's slice/map allocations.
package heap

import (
	"encoding/binary"

	"github.com/Acteus/vibos/internal/kerrno"
	"github.com/Acteus/vibos/internal/memory/phys"
)

// Memory is the flat, byte-addressable backing store the heap carves
// blocks from — physical RAM, identity-mapped in the real kernel. Shaped
// after the teacher's hv.MemoryRegion (io.ReaderAt/io.WriterAt + Size),
// generalized from "one hypervisor guest's RAM" to "this kernel's RAM",
// so the allocator can be driven by an in-process byte slice in tests
// without touching unsafe.Pointer.
type Memory interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

const (
	headerSize = 8 // bytes reserved immediately before every returned block, encoding its class size
	minClass   = 32
	maxClass   = phys.FrameSize
)

// classFor returns the smallest power-of-two block size in [minClass,
// maxClass] that can hold n requested bytes plus the class header, per
// spec §4.6's "rounds up" rule. ok is false when n cannot fit in a single
// frame-sized block — this allocator does not span multiple frames.
func classFor(n uint64) (class uint64, ok bool) {
	need := n + headerSize
	for class = minClass; class <= maxClass; class *= 2 {
		if need <= class {
			return class, true
		}
	}
	return 0, false
}

// Heap is the kernel's single byte allocator. Not safe for concurrent use
// without external locking; internal/kernel wraps it in a ksync.SpinLock
// the way every other shared-state subsystem here is guarded, satisfying
// spec §4.6's "callable from any context where interrupts are disabled"
// requirement (a spinlock never sleeps).
type Heap struct {
	frames    *phys.Allocator
	mem       Memory
	freeLists map[uint64][]uint64 // class size -> usable-block addresses, Go-side bookkeeping only
}

// New builds a Heap carving blocks from frames via the given allocator,
// backed by mem.
func New(frames *phys.Allocator, mem Memory) *Heap {
	return &Heap{frames: frames, mem: mem, freeLists: map[uint64][]uint64{}}
}

// Kmalloc returns the address of an n-byte block, aligned to at least 8
// bytes (spec §4.6). Never sleeps.
func (h *Heap) Kmalloc(n uint64) (uint64, error) {
	class, ok := classFor(n)
	if !ok {
		return 0, kerrno.New("heap.Kmalloc", kerrno.ENOMEM)
	}
	if list := h.freeLists[class]; len(list) > 0 {
		addr := list[len(list)-1]
		h.freeLists[class] = list[:len(list)-1]
		if err := h.writeHeader(addr, class); err != nil {
			return 0, err
		}
		return addr, nil
	}
	return h.carve(class)
}

// Kzalloc is Kmalloc followed by zeroing every byte of the returned block.
func (h *Heap) Kzalloc(n uint64) (uint64, error) {
	addr, err := h.Kmalloc(n)
	if err != nil {
		return 0, err
	}
	class, err := h.readHeader(addr)
	if err != nil {
		return 0, err
	}
	zero := make([]byte, class-headerSize)
	if _, err := h.mem.WriteAt(zero, int64(addr)); err != nil {
		return 0, kerrno.Newf("heap.Kzalloc", "", kerrno.EIO, err)
	}
	return addr, nil
}

// Krealloc resizes the block at addr to hold at least n bytes (spec §2
// component 6's "realloc"): it allocates a fresh block in whatever class n
// now rounds to, copies over the lesser of the old and new usable sizes,
// frees the old block, and returns the new address. If n still fits in
// addr's current class, addr is returned unchanged and nothing is copied.
func (h *Heap) Krealloc(addr uint64, n uint64) (uint64, error) {
	oldClass, err := h.readHeader(addr)
	if err != nil {
		return 0, err
	}
	newClass, ok := classFor(n)
	if !ok {
		return 0, kerrno.New("heap.Krealloc", kerrno.ENOMEM)
	}
	if newClass == oldClass {
		return addr, nil
	}
	newAddr, err := h.Kmalloc(n)
	if err != nil {
		return 0, err
	}
	copyLen := oldClass - headerSize
	if newClass-headerSize < copyLen {
		copyLen = newClass - headerSize
	}
	buf := make([]byte, copyLen)
	if _, err := h.mem.ReadAt(buf, int64(addr)); err != nil {
		return 0, kerrno.Newf("heap.Krealloc", "", kerrno.EIO, err)
	}
	if _, err := h.mem.WriteAt(buf, int64(newAddr)); err != nil {
		return 0, kerrno.Newf("heap.Krealloc", "", kerrno.EIO, err)
	}
	if err := h.Kfree(addr); err != nil {
		return 0, err
	}
	return newAddr, nil
}

// Kfree returns a block previously obtained from Kmalloc/Kzalloc to its
// size class's free list.
func (h *Heap) Kfree(addr uint64) error {
	class, err := h.readHeader(addr)
	if err != nil {
		return err
	}
	h.freeLists[class] = append(h.freeLists[class], addr)
	return nil
}

// carve allocates a fresh frame and splits it into class-sized blocks,
// returning the first and free-listing the rest (spec §4.6's
// "free-list of power-of-two-rounded blocks carved from frames").
func (h *Heap) carve(class uint64) (uint64, error) {
	frame, err := h.frames.AllocFrame()
	if err != nil {
		return 0, err
	}
	count := phys.FrameSize / class
	first := frame + headerSize
	for i := uint64(1); i < count; i++ {
		h.freeLists[class] = append(h.freeLists[class], frame+i*class+headerSize)
	}
	if err := h.writeHeader(first, class); err != nil {
		return 0, err
	}
	return first, nil
}

func (h *Heap) writeHeader(addr, class uint64) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint64(buf[:], class)
	if _, err := h.mem.WriteAt(buf[:], int64(addr-headerSize)); err != nil {
		return kerrno.Newf("heap.writeHeader", "", kerrno.EIO, err)
	}
	return nil
}

func (h *Heap) readHeader(addr uint64) (uint64, error) {
	var buf [headerSize]byte
	if _, err := h.mem.ReadAt(buf[:], int64(addr-headerSize)); err != nil {
		return 0, kerrno.Newf("heap.readHeader", "", kerrno.EIO, err)
	}
	class := binary.LittleEndian.Uint64(buf[:])
	if class < minClass || class > maxClass {
		return 0, kerrno.New("heap.readHeader", kerrno.EINVAL)
	}
	return class, nil
}
