package vfs

import (
	"errors"

	"github.com/Acteus/vibos/internal/kerrno"
)

// Open flags (spec §4.10/§6): a small subset of POSIX's, since this kernel
// has no multi-process file-descriptor table to reconcile against.
const (
	ORDONLY = 0
	OWRONLY = 1
	ORDWR   = 2
	OCREAT  = 1 << 3
	OTRUNC  = 1 << 4
)

// File is an open file handle: a dentry-arena position plus a seek offset.
// Read and Write dispatch to the underlying inode's ReadAt/WriteAt; Seek and
// Close act on the handle alone (spec §4.10).
type File struct {
	v      *VFS
	idx    int
	offset uint64
}

// Open resolves path; if absent and O_CREAT is set, calls the parent's
// Create; honors O_TRUNC by resetting size to zero (spec §4.10).
func (v *VFS) Open(path string, flags int, mode uint32) (*File, error) {
	idx, err := v.resolve(path)
	if err != nil {
		if !errors.Is(err, kerrno.ENOENT) || flags&OCREAT == 0 {
			return nil, err
		}
		idx, err = v.create(path, mode)
		if err != nil {
			return nil, err
		}
	}

	v.mu.Lock()
	inode := v.dentries[idx].inode
	v.mu.Unlock()

	if flags&OTRUNC != 0 {
		if err := inode.Truncate(); err != nil {
			return nil, err
		}
	}
	return &File{v: v, idx: idx}, nil
}

func (v *VFS) create(path string, mode uint32) (int, error) {
	parentPath, name := splitParent(path)
	if name == "" {
		return 0, kerrno.New("vfs.create", kerrno.EINVAL)
	}
	parentIdx, err := v.resolve(parentPath)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	parentInode := v.dentries[parentIdx].inode
	v.mu.Unlock()

	child, err := parentInode.Create(name, mode)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx := len(v.dentries)
	v.dentries = append(v.dentries, dentry{name: name, parent: parentIdx, inode: child, children: map[string]int{}})
	v.dentries[parentIdx].children[name] = idx
	return idx, nil
}

// Read reads up to len(buf) bytes at the file's current offset, advancing
// it by the number of bytes read.
func (f *File) Read(buf []byte) (int, error) {
	f.v.mu.Lock()
	inode := f.v.dentries[f.idx].inode
	f.v.mu.Unlock()

	n, err := inode.ReadAt(f.offset, buf)
	f.offset += uint64(n)
	return n, err
}

// Write writes data at the file's current offset, advancing it.
func (f *File) Write(data []byte) (int, error) {
	f.v.mu.Lock()
	inode := f.v.dentries[f.idx].inode
	f.v.mu.Unlock()

	n, err := inode.WriteAt(f.offset, data)
	f.offset += uint64(n)
	return n, err
}

// Seek repositions the file's offset to off, per spec §4.10's file handle
// vtable.
func (f *File) Seek(off uint64) {
	f.offset = off
}

// Close releases the file handle. There is nothing to flush at this layer
// (the underlying block device's own Flush is a separate, explicit
// operation per spec §4.8).
func (f *File) Close() error {
	return nil
}

// Mkdir resolves the parent and calls its Mkdir(name, mode) (spec §4.10).
func (v *VFS) Mkdir(path string, mode uint32) error {
	parentPath, name := splitParent(path)
	if name == "" {
		return kerrno.New("vfs.Mkdir", kerrno.EINVAL)
	}
	parentIdx, err := v.resolve(parentPath)
	if err != nil {
		return err
	}

	v.mu.Lock()
	parentInode := v.dentries[parentIdx].inode
	v.mu.Unlock()

	if !parentInode.IsDir() {
		return kerrno.New("vfs.Mkdir", kerrno.ENOTDIR)
	}
	_, err = parentInode.Mkdir(name, mode)
	return err
}

// FillFunc is called once per real directory entry during Readdir;
// returning non-zero halts iteration (spec §4.10: "Returning non-zero from
// fill halts iteration").
type FillFunc func(ctx any, name string, offset uint64, typ DirEntryType) int

// Readdir iterates f's entries, calling fill for each (spec §4.10).
func (v *VFS) Readdir(f *File, ctx any, fill FillFunc) error {
	v.mu.Lock()
	inode := v.dentries[f.idx].inode
	v.mu.Unlock()

	if !inode.IsDir() {
		return kerrno.New("vfs.Readdir", kerrno.ENOTDIR)
	}
	entries, err := inode.Readdir()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if fill(ctx, e.Name, uint64(i), e.Type) != 0 {
			return nil
		}
	}
	return nil
}

// Rename moves path to newPath, delegating to the owning inode's Rename
// (spec §6's kernel-API vtable names `rename` alongside open/read/write/
// close/readdir/mkdir/unlink).
func (v *VFS) Rename(path, newPath string) error {
	parentPath, name := splitParent(path)
	newParentPath, newName := splitParent(newPath)
	if name == "" || newName == "" {
		return kerrno.New("vfs.Rename", kerrno.EINVAL)
	}

	parentIdx, err := v.resolve(parentPath)
	if err != nil {
		return err
	}
	newParentIdx, err := v.resolve(newParentPath)
	if err != nil {
		return err
	}

	v.mu.Lock()
	parentInode := v.dentries[parentIdx].inode
	newParentInode := v.dentries[newParentIdx].inode
	delete(v.dentries[parentIdx].children, name)
	delete(v.dentries[newParentIdx].children, newName)
	v.mu.Unlock()

	return parentInode.Rename(name, newParentInode, newName)
}

// Unlink removes path, delegating to the owning inode's Unlink.
func (v *VFS) Unlink(path string) error {
	parentPath, name := splitParent(path)
	if name == "" {
		return kerrno.New("vfs.Unlink", kerrno.EINVAL)
	}
	parentIdx, err := v.resolve(parentPath)
	if err != nil {
		return err
	}

	v.mu.Lock()
	parentInode := v.dentries[parentIdx].inode
	delete(v.dentries[parentIdx].children, name)
	v.mu.Unlock()

	return parentInode.Unlink(name)
}
