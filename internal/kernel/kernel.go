// Package kernel implements the top-level kernel context: a single value
// owning every subsystem singleton (frame allocator, heap, page tables,
// block registry, VFS, task scheduler) instead of the process-wide globals
// the source this spec was distilled from used, with an explicit init
// order — memory, then interrupts, then timer, then block, then VFS,
// then tasks.
//
// Grounded on the teacher's internal/chipset.Chipset: one struct devices
// are registered into and callers are handed to reach hardware, generalized
// from "chipset of devices" to "kernel of subsystems." internal/intc and
// internal/timer stay their own process-wide singletons exactly as built
// (the redesign only named the filesystem pointer, block registry, task
// list, frame bitmap, and heap as needing this treatment); Boot still
// initializes them in the documented order, it just doesn't own them.
package kernel

import (
	"io"

	"github.com/Acteus/vibos/internal/arch"
	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/bootinfo"
	"github.com/Acteus/vibos/internal/intc"
	"github.com/Acteus/vibos/internal/kapi"
	"github.com/Acteus/vibos/internal/kerrno"
	"github.com/Acteus/vibos/internal/klog"
	"github.com/Acteus/vibos/internal/ksync"
	"github.com/Acteus/vibos/internal/memory/heap"
	"github.com/Acteus/vibos/internal/memory/phys"
	"github.com/Acteus/vibos/internal/memory/virt"
	"github.com/Acteus/vibos/internal/task"
	"github.com/Acteus/vibos/internal/timer"
	"github.com/Acteus/vibos/internal/vfs"
)

// Memory is the flat byte- and word-addressable backing store Boot carves
// the heap and page tables from — internal/memory/directmap.RAM in
// production, an in-process fake in tests. Combines heap.Memory and
// virt.Memory's separate accessor shapes since both describe views onto
// the same underlying RAM.
type Memory interface {
	heap.Memory
	virt.Memory
}

// Volume describes one block device Boot registers, and optionally mounts
// as a filesystem root.
type Volume struct {
	Device  block.Device
	FSType  string // registered vfs.FileSystemType name; empty means register only
	MountAt string // mount point; empty means register only, do not mount
}

// Config gathers every architecture-specific and board-specific dependency
// Boot needs already constructed. Building these from real hardware is the
// boot stub's job (out of scope per spec §1); within this module only
// internal/kernel's own tests build a Config, from in-process fakes.
type Config[C any] struct {
	Boot bootinfo.Handoff

	HAL        arch.HAL
	Switcher   arch.ContextSwitcher[C]
	Controller intc.Controller // nil skips interrupt-core init (host tools)

	TimerSource timer.Source // nil skips timer init (host tools)
	TimerFreqHz uint64

	Memory      Memory
	VirtEncoder virt.Encoder // nil skips page-table construction

	Console io.Writer // mirrors every printk line; nil means log only to the ring buffer

	FileSystems []vfs.FileSystemType
	Volumes     []Volume
}

// heapGuard wraps a *heap.Heap with the spinlock its own doc comment calls
// for, satisfying kapi.HeapAPI.
type heapGuard struct {
	lock ksync.SpinLock
	h    *heap.Heap
}

func (g *heapGuard) Kmalloc(n uint64) (uint64, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.h.Kmalloc(n)
}

func (g *heapGuard) Kzalloc(n uint64) (uint64, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.h.Kzalloc(n)
}

func (g *heapGuard) Krealloc(addr uint64, n uint64) (uint64, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.h.Krealloc(addr, n)
}

func (g *heapGuard) Kfree(addr uint64) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.h.Kfree(addr)
}

// Kernel owns every subsystem singleton for one booted hart. Zero value is
// not usable; build one with Boot.
type Kernel[C any] struct {
	HAL        arch.HAL
	Frames     *phys.Allocator
	PageTable  *virt.PageTable // nil if Config.VirtEncoder was nil
	Scheduler  *task.Scheduler[C]
	Blocks     *block.Registry
	VFS        *vfs.VFS
	API        *kapi.Table[C]

	heap     *heapGuard
	pageLock ksync.SpinLock
}

var log = klog.WithSource("kernel")

// Boot brings up every subsystem in the order spec.md's "Global mutable
// state" redesign specifies: memory, interrupts, timer, block, VFS, tasks.
// A failure at any step aborts the remaining steps and returns immediately
// — there is no partial-boot recovery, matching spec §7's class-4 "mount
// failure" treatment for boot-time consistency errors.
func Boot[C any](cfg Config[C]) (*Kernel[C], error) {
	if cfg.HAL == nil || cfg.Switcher == nil || cfg.Memory == nil {
		return nil, kerrno.New("kernel.Boot", kerrno.EINVAL)
	}
	if cfg.Console != nil {
		klog.SetSink(cfg.Console)
		klog.SetColorize(true)
	}
	klog.SetIRQDisabler(cfg.HAL)
	log.Infof("boot: arch=%s", cfg.HAL.Architecture())

	// 1. memory: frame allocator, heap, and (if a page-table encoder was
	// supplied) the kernel's own root translation table.
	frames := phys.New(cfg.Boot)
	log.Infof("memory: %d frames usable", frames.TotalFrames())

	h := heap.New(frames, cfg.Memory)
	hg := &heapGuard{h: h}

	var pt *virt.PageTable
	if cfg.VirtEncoder != nil {
		var err error
		pt, err = virt.New(cfg.Memory, frames, cfg.VirtEncoder)
		if err != nil {
			return nil, kerrno.Newf("kernel.Boot", "page table", kerrno.ENOMEM, err)
		}
		log.Infof("memory: root page table at %#x", pt.RootPhysAddr())
	}

	// 2. interrupts
	if cfg.Controller != nil {
		intc.SetController(cfg.Controller)
		log.Infof("interrupts: controller installed")
	}

	// 3. timer
	if cfg.TimerSource != nil {
		timer.Init(cfg.TimerSource, cfg.TimerFreqHz)
		log.Infof("timer: %d Hz", cfg.TimerFreqHz)
	}

	// 4. block
	blocks := block.NewRegistry()
	for _, vol := range cfg.Volumes {
		name, err := blocks.Register(vol.Device)
		if err != nil {
			return nil, kerrno.Newf("kernel.Boot", "block register", kerrno.ENOSPC, err)
		}
		log.Infof("block: %s registered as %s", vol.Device.Info().Name, name)
	}

	// 5. VFS
	v := vfs.New()
	for _, fst := range cfg.FileSystems {
		if err := v.RegisterFileSystemType(fst); err != nil {
			return nil, err
		}
	}
	for _, vol := range cfg.Volumes {
		if vol.MountAt == "" {
			continue
		}
		if err := v.Mount(vol.MountAt, vol.FSType, vol.Device, 0); err != nil {
			return nil, kerrno.Newf("kernel.Boot", "mount "+vol.MountAt, kerrno.EIO, err)
		}
		log.Infof("vfs: mounted %s at %s", vol.FSType, vol.MountAt)
	}

	// 6. tasks
	sched := task.NewScheduler[C](cfg.Switcher)
	if cfg.TimerSource != nil {
		timer.OnTick(func() { sched.Tick(cfg.HAL) })
	}

	k := &Kernel[C]{
		HAL:       cfg.HAL,
		Frames:    frames,
		PageTable: pt,
		Scheduler: sched,
		Blocks:    blocks,
		VFS:       v,
		heap:      hg,
	}
	k.API = kapi.Build[C](hg, v, sched, cfg.HAL)
	log.Infof("boot complete")
	return k, nil
}

// Kmalloc/Kzalloc/Krealloc/Kfree expose the lock-guarded heap directly,
// for kernel code running ahead of a loaded application (e.g. building the
// initial task's stack) that needs kapi.Table's allocator without a Table
// handle.
func (k *Kernel[C]) Kmalloc(n uint64) (uint64, error) { return k.heap.Kmalloc(n) }
func (k *Kernel[C]) Kzalloc(n uint64) (uint64, error) { return k.heap.Kzalloc(n) }
func (k *Kernel[C]) Krealloc(addr uint64, n uint64) (uint64, error) {
	return k.heap.Krealloc(addr, n)
}
func (k *Kernel[C]) Kfree(addr uint64) error { return k.heap.Kfree(addr) }

// MapPage installs vaddr->physAddr in the kernel's root page table under
// the shared memory-subsystem lock (spec §4.5). Returns ENOSYS if Boot was
// given no VirtEncoder.
func (k *Kernel[C]) MapPage(vaddr, physAddr uint64, attrs virt.Attrs) error {
	if k.PageTable == nil {
		return kerrno.New("kernel.MapPage", kerrno.ENOSYS)
	}
	k.pageLock.Lock()
	defer k.pageLock.Unlock()
	return k.PageTable.Map(vaddr, physAddr, attrs)
}

// UnmapPage clears vaddr's translation.
func (k *Kernel[C]) UnmapPage(vaddr uint64) error {
	if k.PageTable == nil {
		return kerrno.New("kernel.UnmapPage", kerrno.ENOSYS)
	}
	k.pageLock.Lock()
	defer k.pageLock.Unlock()
	return k.PageTable.Unmap(vaddr)
}

// SetPageAttrs reprograms an existing mapping's attributes (spec §4.5's
// set_attrs, used to toggle write-combine on a framebuffer range).
func (k *Kernel[C]) SetPageAttrs(vaddr uint64, attrs virt.Attrs) error {
	if k.PageTable == nil {
		return kerrno.New("kernel.SetPageAttrs", kerrno.ENOSYS)
	}
	k.pageLock.Lock()
	defer k.pageLock.Unlock()
	return k.PageTable.SetAttrs(vaddr, attrs)
}

// ActivatePageTable installs the kernel's root page table via the HAL's
// MMU surface, per spec §4.1's mmu_switch. Called once, after Boot, from
// whichever context is about to start dispatching to user tasks.
func (k *Kernel[C]) ActivatePageTable() error {
	if k.PageTable == nil {
		return kerrno.New("kernel.ActivatePageTable", kerrno.ENOSYS)
	}
	k.HAL.SwitchRoot(k.PageTable.RootPhysAddr())
	return nil
}
