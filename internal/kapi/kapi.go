// Package kapi implements the stable kernel-API vtable spec §6 describes:
// "a stable struct of function pointers spanning: printk, kmalloc/kfree,
// VFS open/read/write/close/readdir/mkdir/rename/unlink, block
// read/write/flush, task create/yield, timer ms_since_boot." An
// application's `main(kapi, argc, argv)` receives a pointer to this table
// as its first argument.
//
// Grounded on internal/chipset.Chipset's role as the single struct other
// subsystems are handed to reach hardware: here the table is handed to
// loaded applications and the compositor to reach the kernel, the same
// "one struct, many function-pointer-shaped fields" dispatch shape.
package kapi

import (
	"github.com/Acteus/vibos/internal/arch"
	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/klog"
	"github.com/Acteus/vibos/internal/task"
	"github.com/Acteus/vibos/internal/timer"
	"github.com/Acteus/vibos/internal/vfs"
)

// HeapAPI is the subset of *memory/heap.Heap Build needs. heap.Heap's own
// doc comment says it is "not safe for concurrent use without external
// locking" and names internal/kernel as the place that lock belongs;
// internal/kernel satisfies this with a spinlock-guarded wrapper rather
// than handing the bare *heap.Heap through.
type HeapAPI interface {
	Kmalloc(n uint64) (uint64, error)
	Kzalloc(n uint64) (uint64, error)
	Krealloc(addr uint64, n uint64) (uint64, error)
	Kfree(addr uint64) error
}

// Table is the kernel-API vtable. C is the architecture's saved-context
// type (arch/amd64.Context or arch/arm64.Context), the same type parameter
// internal/task.Scheduler carries — kapi does not choose an architecture,
// internal/kernel does, at the point it calls Build.
type Table[C any] struct {
	Printk func(sev klog.Severity, format string, args ...any)

	Kmalloc  func(n uint64) (uint64, error)
	Kzalloc  func(n uint64) (uint64, error)
	Krealloc func(addr uint64, n uint64) (uint64, error)
	Kfree    func(addr uint64) error

	VFSOpen    func(path string, flags int, mode uint32) (*vfs.File, error)
	VFSRead    func(f *vfs.File, buf []byte) (int, error)
	VFSWrite   func(f *vfs.File, data []byte) (int, error)
	VFSClose   func(f *vfs.File) error
	VFSReaddir func(f *vfs.File, ctx any, fill vfs.FillFunc) error
	VFSMkdir   func(path string, mode uint32) error
	VFSRename  func(oldPath, newPath string) error
	VFSUnlink  func(path string) error

	BlockRead  func(dev block.Device, sector uint64, count uint32, buf []byte) error
	BlockWrite func(dev block.Device, sector uint64, count uint32, buf []byte) error
	BlockFlush func(dev block.Device) error

	TaskCreate func(entry, arg uintptr, priority int, stackSize int) *task.Task[C]
	TaskYield  func()

	TimerMSSinceBoot func() uint64
}

// Build wires a Table's function fields to the given subsystem instances.
// heapInst/vfsInst/sched/irq are expected to already be initialized by
// internal/kernel's boot sequence; Build performs no initialization of its
// own, only binding.
func Build[C any](heapInst HeapAPI, vfsInst *vfs.VFS, sched *task.Scheduler[C], irq arch.IRQMasker) *Table[C] {
	return &Table[C]{
		Printk: klog.Printk,

		Kmalloc:  heapInst.Kmalloc,
		Kzalloc:  heapInst.Kzalloc,
		Krealloc: heapInst.Krealloc,
		Kfree:    heapInst.Kfree,

		VFSOpen:    vfsInst.Open,
		VFSRead:    func(f *vfs.File, buf []byte) (int, error) { return f.Read(buf) },
		VFSWrite:   func(f *vfs.File, data []byte) (int, error) { return f.Write(data) },
		VFSClose:   func(f *vfs.File) error { return f.Close() },
		VFSReaddir: vfsInst.Readdir,
		VFSMkdir:   vfsInst.Mkdir,
		VFSRename:  vfsInst.Rename,
		VFSUnlink:  vfsInst.Unlink,

		BlockRead:  block.Read,
		BlockWrite: block.Write,
		BlockFlush: block.Flush,

		TaskCreate: func(entry, arg uintptr, priority, stackSize int) *task.Task[C] {
			return sched.Spawn(entry, arg, priority, stackSize)
		},
		TaskYield: func() { sched.Yield(irq) },

		TimerMSSinceBoot: timer.MSSinceBoot,
	}
}
