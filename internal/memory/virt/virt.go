// Package virt implements 4-level virtual-memory page tables (spec §4.5):
// map/unmap/set-attributes over a generic 512-entry-per-level walker shared
// by both architectures, since amd64 (4-level paging) and AArch64 (4-level
// stage-1 translation, identical 9-bit/9-bit/9-bit/9-bit/12-bit split) agree
// on table shape and differ only in how a leaf entry's attribute bits are
// encoded. That per-architecture difference is isolated behind the Encoder
// interface; this file owns only the walk.
package virt

import (
	"github.com/Acteus/vibos/internal/kerrno"
	"github.com/Acteus/vibos/internal/memory/phys"
)

const (
	entriesPerLevel = 512
	levels          = 4
	pageSize        = phys.FrameSize
)

// CacheType is the architecture-neutral caching policy spec §4.5 asks for:
// write-back (normal RAM), write-combine (framebuffers/MMIO writes that
// benefit from batching), and uncacheable (MMIO that must not be batched or
// reordered). Each Encoder maps these onto its own PAT-index/MAIR-index
// scheme.
type CacheType int

const (
	WriteBack CacheType = iota
	WriteCombine
	Uncacheable
)

// Attrs is the full set of per-page attributes Map/SetAttrs accept.
type Attrs struct {
	Writable   bool
	UserAccess bool
	Executable bool
	Cache      CacheType
}

// Encoder translates Attrs and a physical address into an architecture's
// raw page-table-entry bit pattern, and back.
type Encoder interface {
	EncodeTable(phys uint64) uint64
	EncodeLeaf(phys uint64, attrs Attrs) uint64
	Present(pte uint64) bool
	IsLeaf(pte uint64, level int) bool
	PhysAddr(pte uint64) uint64
	DecodeAttrs(pte uint64) Attrs
}

// Memory is how the walker reads/writes table entries. Production wiring
// backs this with the kernel's identity-mapped direct-map region (every
// usable physical frame is also accessible at a fixed virtual offset, so
// table pages can be walked without first mapping them); tests back it
// with a plain Go map simulating physical RAM.
type Memory interface {
	Read64(addr uint64) uint64
	Write64(addr uint64, val uint64)
}

// PageTable is one 4-level translation hierarchy.
type PageTable struct {
	root    uint64
	mem     Memory
	alloc   *phys.Allocator
	encoder Encoder
}

// New creates a PageTable with a freshly allocated, zeroed root table.
func New(mem Memory, alloc *phys.Allocator, enc Encoder) (*PageTable, error) {
	root, err := alloc.AllocFrame()
	if err != nil {
		return nil, kerrno.Newf("virt.New", "", kerrno.ENOMEM, err)
	}
	zeroPage(mem, root)
	return &PageTable{root: root, mem: mem, alloc: alloc, encoder: enc}, nil
}

func zeroPage(mem Memory, addr uint64) {
	for i := uint64(0); i < pageSize; i += 8 {
		mem.Write64(addr+i, 0)
	}
}

// RootPhysAddr returns the physical address the HAL's SwitchRoot/TTBR0
// should be loaded with to activate this table.
func (pt *PageTable) RootPhysAddr() uint64 { return pt.root }

func index(vaddr uint64, level int) uint64 {
	shift := uint(12 + 9*(levels-1-level))
	return (vaddr >> shift) & (entriesPerLevel - 1)
}

// walk descends to the leaf level, allocating intermediate table pages on
// demand when create is true. It returns the entry address at the final
// level with ok true, or, when create is false and an intermediate entry is
// not present, that intermediate entry's address with ok false.
func (pt *PageTable) walk(vaddr uint64, create bool) (entryAddr uint64, ok bool, err error) {
	// created tracks intermediate tables this call allocates, each as the
	// address of the parent entry that points to it and the table's own
	// frame address, so a failure partway down can unwind everything it
	// allocated (spec §4.5: "any partially-allocated intermediate tables
	// must be freed") instead of leaving a child table wired into the
	// tree with nothing useful under it.
	type allocated struct {
		entryAddr, childTable uint64
	}
	var created []allocated
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			pt.mem.Write64(created[i].entryAddr, 0)
			pt.alloc.FreeFrame(created[i].childTable)
		}
	}

	table := pt.root
	for lvl := 0; lvl < levels-1; lvl++ {
		idx := index(vaddr, lvl)
		entryAddr = table + idx*8
		pte := pt.mem.Read64(entryAddr)
		if !pt.encoder.Present(pte) {
			if !create {
				return entryAddr, false, nil
			}
			childTable, ferr := pt.alloc.AllocFrame()
			if ferr != nil {
				rollback()
				return 0, false, kerrno.Newf("virt.walk", "", kerrno.ENOMEM, ferr)
			}
			zeroPage(pt.mem, childTable)
			pt.mem.Write64(entryAddr, pt.encoder.EncodeTable(childTable))
			created = append(created, allocated{entryAddr: entryAddr, childTable: childTable})
			table = childTable
			continue
		}
		table = pt.encoder.PhysAddr(pte)
	}
	idx := index(vaddr, levels-1)
	entryAddr = table + idx*8
	return entryAddr, true, nil
}

// Map installs a translation from vaddr to physAddr with the given
// attributes, allocating intermediate page-table levels as needed.
func (pt *PageTable) Map(vaddr, physAddr uint64, attrs Attrs) error {
	if vaddr%pageSize != 0 || physAddr%pageSize != 0 {
		return kerrno.New("virt.Map", kerrno.EINVAL)
	}
	entryAddr, _, err := pt.walk(vaddr, true)
	if err != nil {
		return err
	}
	if pt.encoder.Present(pt.mem.Read64(entryAddr)) {
		return kerrno.New("virt.Map", kerrno.EEXIST)
	}
	pt.mem.Write64(entryAddr, pt.encoder.EncodeLeaf(physAddr, attrs))
	return nil
}

// Unmap clears a leaf translation. Unmapping an address with no mapping is
// a no-op success, matching the teacher's MMIO-region release semantics
// (releasing what was never reserved is harmless bookkeeping, not an
// error).
func (pt *PageTable) Unmap(vaddr uint64) error {
	if vaddr%pageSize != 0 {
		return kerrno.New("virt.Unmap", kerrno.EINVAL)
	}
	entryAddr, ok, err := pt.walk(vaddr, false)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	pt.mem.Write64(entryAddr, 0)
	return nil
}

// SetAttrs reprograms an existing mapping's attributes in place (spec
// §4.5's "set_attrs", used to toggle write-combine on/off a framebuffer
// range without unmapping it first).
func (pt *PageTable) SetAttrs(vaddr uint64, attrs Attrs) error {
	if vaddr%pageSize != 0 {
		return kerrno.New("virt.SetAttrs", kerrno.EINVAL)
	}
	entryAddr, ok, err := pt.walk(vaddr, false)
	if err != nil {
		return err
	}
	if !ok || !pt.encoder.Present(pt.mem.Read64(entryAddr)) {
		return kerrno.New("virt.SetAttrs", kerrno.EINVAL)
	}
	phys := pt.encoder.PhysAddr(pt.mem.Read64(entryAddr))
	pt.mem.Write64(entryAddr, pt.encoder.EncodeLeaf(phys, attrs))
	return nil
}

// Translate resolves vaddr to its mapped physical address and attributes.
func (pt *PageTable) Translate(vaddr uint64) (physAddr uint64, attrs Attrs, err error) {
	entryAddr, ok, werr := pt.walk(vaddr, false)
	if werr != nil {
		return 0, Attrs{}, werr
	}
	pte := pt.mem.Read64(entryAddr)
	if !ok || !pt.encoder.Present(pte) {
		return 0, Attrs{}, kerrno.New("virt.Translate", kerrno.ENOENT)
	}
	return pt.encoder.PhysAddr(pte), pt.encoder.DecodeAttrs(pte), nil
}
