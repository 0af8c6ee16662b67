// Package vfs implements the virtual filesystem layer (spec §4.10):
// filesystem-type registration, mount, path resolution, and the open/
// read/write/close/readdir/mkdir/rename/unlink operations exposed through
// the kernel-API vtable (spec §6). Heavily adapted from the teacher's
// internal/vfs/backend.go — its fsNode arena (index-addressed nodes with a
// parent link) and dentry-cache idea survive, but its xattr, POSIX ACL,
// byte-range lock, and FUSE-wire-protocol plumbing do not: this kernel has
// no multi-user permission model and no FUSE transport to speak, so all of
// that is stripped in favor of spec §4.10's much smaller surface.
package vfs

import (
	"strings"
	"sync"

	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/kerrno"
)

// DirEntryType distinguishes a directory-listing entry's kind, passed to a
// Readdir fill callback (spec §4.10: "... inode, type").
type DirEntryType uint8

const (
	TypeFile DirEntryType = iota
	TypeDir
)

// Inode is the per-filesystem operation vtable spec §4.10 implies but
// leaves to the filesystem driver ("calling the parent inode's lookup(name)
// ... the parent's create(name, mode)"). internal/fat32 is adapted to this
// interface by fat32fs.go; a future second filesystem driver would satisfy
// it the same way.
type Inode interface {
	Lookup(name string) (Inode, error)
	Create(name string, mode uint32) (Inode, error)
	Mkdir(name string, mode uint32) (Inode, error)
	Unlink(name string) error
	Rename(oldName string, newParent Inode, newName string) error
	ReadAt(off uint64, buf []byte) (int, error)
	WriteAt(off uint64, data []byte) (int, error)
	Truncate() error
	Readdir() ([]NamedEntry, error)
	IsDir() bool
	Size() uint64
}

// NamedEntry is one entry produced by Inode.Readdir, before dentry-cache
// indexing assigns it a position (spec §4.10's readdir fill callback
// arguments: name, inode, type).
type NamedEntry struct {
	Name string
	Type DirEntryType
}

// FileSystemType is registered by name and produces a root Inode for a
// given block device (spec §4.10: "registers filesystem types by name").
type FileSystemType interface {
	Name() string
	Mount(dev block.Device, flags int) (Inode, error)
}

// dentry is one entry in the dentry cache arena. Parent is an index into
// VFS.dentries; the root dentry of each mount is its own parent, mirroring
// the teacher's fsNode arena (id-addressed, parent-linked) generalized from
// a single virtiofs tree to an arena that can hold more than one mount's
// dentries at once.
type dentry struct {
	name     string
	parent   int
	inode    Inode
	children map[string]int
}

// VFS is the kernel's single virtual filesystem instance.
type VFS struct {
	mu sync.Mutex

	types    map[string]FileSystemType
	dentries []dentry
	mounts   map[string]int // mount point path -> dentry index of that mount's root
}

// New builds an empty VFS.
func New() *VFS {
	return &VFS{types: map[string]FileSystemType{}, mounts: map[string]int{}}
}

// RegisterFileSystemType adds fst to the registry under its own name.
func (v *VFS) RegisterFileSystemType(fst FileSystemType) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.types[fst.Name()]; exists {
		return kerrno.New("vfs.RegisterFileSystemType", kerrno.EEXIST)
	}
	v.types[fst.Name()] = fst
	return nil
}

// Mount resolves typeName in the registry, calls its Mount routine, and
// records the resulting root inode as a new dentry-arena entry at path
// (spec §4.10: "resolves the type, calls its mount routine, and records the
// root superblock and dentry").
func (v *VFS) Mount(path string, typeName string, dev block.Device, flags int) error {
	v.mu.Lock()
	fst, ok := v.types[typeName]
	v.mu.Unlock()
	if !ok {
		return kerrno.New("vfs.Mount", kerrno.ENOSYS)
	}

	root, err := fst.Mount(dev, flags)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx := len(v.dentries)
	v.dentries = append(v.dentries, dentry{name: path, parent: idx, inode: root, children: map[string]int{}})
	v.mounts[path] = idx
	return nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// resolve walks path component by component from the "/" mount's root,
// calling through each parent inode's Lookup and populating the dentry
// cache as it goes (spec §4.10's path resolution). Absent entries return
// ENOENT.
func (v *VFS) resolve(path string) (int, error) {
	v.mu.Lock()
	rootIdx, ok := v.mounts["/"]
	v.mu.Unlock()
	if !ok {
		return 0, kerrno.New("vfs.resolve", kerrno.ENOENT)
	}

	idx := rootIdx
	for _, name := range splitPath(path) {
		next, err := v.child(idx, name)
		if err != nil {
			return 0, err
		}
		idx = next
	}
	return idx, nil
}

// child returns the dentry index for name under the dentry at parentIdx,
// consulting the cache first and falling back to the parent inode's
// Lookup, which then populates the cache (spec §4.10: "Lookups populate
// the dentry cache; absent entries return 'not found'").
func (v *VFS) child(parentIdx int, name string) (int, error) {
	v.mu.Lock()
	parent := &v.dentries[parentIdx]
	if cached, ok := parent.children[name]; ok {
		v.mu.Unlock()
		return cached, nil
	}
	parentInode := parent.inode
	v.mu.Unlock()

	if !parentInode.IsDir() {
		return 0, kerrno.New("vfs.child", kerrno.ENOTDIR)
	}
	child, err := parentInode.Lookup(name)
	if err != nil {
		return 0, kerrno.New("vfs.child", kerrno.ENOENT)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx := len(v.dentries)
	v.dentries = append(v.dentries, dentry{name: name, parent: parentIdx, inode: child, children: map[string]int{}})
	v.dentries[parentIdx].children[name] = idx
	return idx, nil
}

func splitParent(path string) (parentPath, name string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "/", ""
	}
	name = parts[len(parts)-1]
	parentPath = "/" + strings.Join(parts[:len(parts)-1], "/")
	return parentPath, name
}
