package vfs

import (
	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/fat32"
	"github.com/Acteus/vibos/internal/kerrno"
)

// FAT32Type adapts internal/fat32 to the vfs.FileSystemType/Inode
// interfaces. now supplies the current time for entries this filesystem
// creates, since the kernel has no bundled real-time clock of its own to
// read (spec §4.3's timer is a monotonic tick count, not wall-clock time).
type FAT32Type struct {
	Now func() fat32.DOSTime
}

var _ FileSystemType = FAT32Type{}

// Name implements FileSystemType.
func (FAT32Type) Name() string { return "fat32" }

// Mount implements FileSystemType, returning the FAT32 root directory as
// the mount's root Inode.
func (t FAT32Type) Mount(dev block.Device, flags int) (Inode, error) {
	vol, err := fat32.Mount(dev)
	if err != nil {
		return nil, err
	}
	return &fat32Node{vol: vol, entry: fat32.DirEntry{Cluster: vol.RootCluster(), Attr: fat32.AttrDirectory}, now: t.Now}, nil
}

// fat32Node adapts one fat32.DirEntry (plus the Volume it lives on) to the
// vfs.Inode interface.
type fat32Node struct {
	vol   *fat32.Volume
	entry fat32.DirEntry
	now   func() fat32.DOSTime
}

var _ Inode = (*fat32Node)(nil)

func (n *fat32Node) IsDir() bool   { return n.entry.IsDir() }
func (n *fat32Node) Size() uint64 { return uint64(n.entry.Size) }

func (n *fat32Node) Lookup(name string) (Inode, error) {
	e, err := n.vol.Lookup(n.entry.Cluster, name)
	if err != nil {
		return nil, err
	}
	return &fat32Node{vol: n.vol, entry: e, now: n.now}, nil
}

func (n *fat32Node) Create(name string, mode uint32) (Inode, error) {
	e, err := n.vol.CreateEntry(n.entry.Cluster, name, 0, 0, 0, n.timestamp())
	if err != nil {
		return nil, err
	}
	return &fat32Node{vol: n.vol, entry: e, now: n.now}, nil
}

func (n *fat32Node) Mkdir(name string, mode uint32) (Inode, error) {
	e, err := n.vol.MkdirAt(n.entry.Cluster, name, n.timestamp())
	if err != nil {
		return nil, err
	}
	return &fat32Node{vol: n.vol, entry: e, now: n.now}, nil
}

func (n *fat32Node) Unlink(name string) error {
	return n.vol.Unlink(n.entry.Cluster, name)
}

func (n *fat32Node) Rename(oldName string, newParent Inode, newName string) error {
	dst, ok := newParent.(*fat32Node)
	if !ok {
		return kerrno.New("fat32Node.Rename", kerrno.EINVAL)
	}
	return n.vol.Rename(n.entry.Cluster, oldName, dst.entry.Cluster, newName)
}

func (n *fat32Node) ReadAt(off uint64, buf []byte) (int, error) {
	return n.vol.ReadFile(&n.entry, off, buf)
}

func (n *fat32Node) WriteAt(off uint64, data []byte) (int, error) {
	if err := n.vol.WriteFile(&n.entry, off, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (n *fat32Node) Truncate() error {
	return n.vol.Truncate(&n.entry)
}

func (n *fat32Node) Readdir() ([]NamedEntry, error) {
	entries, err := n.vol.ListDir(n.entry.Cluster)
	if err != nil {
		return nil, err
	}
	out := make([]NamedEntry, 0, len(entries))
	for _, e := range entries {
		typ := TypeFile
		if e.IsDir() {
			typ = TypeDir
		}
		out = append(out, NamedEntry{Name: e.FullName(), Type: typ})
	}
	return out, nil
}

func (n *fat32Node) timestamp() fat32.DOSTime {
	if n.now != nil {
		return n.now()
	}
	return fat32.DOSTime{}
}
