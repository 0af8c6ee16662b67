package fat32

import "github.com/Acteus/vibos/internal/kerrno"

// Symlink always fails with ENOTSUP (SPEC_FULL.md §D.6): FAT32 has no
// directory-entry attribute bit for a symbolic link, so this driver cannot
// represent one, unlike internal/vfs which defines the capability at the
// filesystem-type-agnostic layer.
func (v *Volume) Symlink(dirStartCluster uint32, name, target string) error {
	return kerrno.New("fat32.Symlink", kerrno.ENOTSUP)
}

// ReadFile reads len(buf) bytes starting at offset from entry's cluster
// chain into buf, returning the number of bytes actually read (short of
// len(buf) only at end-of-file, never mid-cluster on a healthy chain).
func (v *Volume) ReadFile(entry *DirEntry, offset uint64, buf []byte) (int, error) {
	if offset >= uint64(entry.Size) {
		return 0, nil
	}
	if remaining := uint64(entry.Size) - offset; uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	if entry.Cluster == 0 {
		return 0, nil
	}

	clusterSize := uint64(v.bs.ClusterSize())
	chain, err := v.Chain(entry.Cluster)
	if err != nil {
		return 0, err
	}

	var read int
	for len(buf) > 0 {
		idx := int(offset / clusterSize)
		if idx >= len(chain) {
			break
		}
		data, err := v.ReadCluster(chain[idx])
		if err != nil {
			return read, err
		}
		within := offset % clusterSize
		n := copy(buf, data[within:])
		buf = buf[n:]
		offset += uint64(n)
		read += n
	}
	return read, nil
}

// WriteFile writes data to entry's chain starting at offset, extending the
// chain with freshly zeroed clusters as needed (spec §4.9's file
// extension): "allocate a new cluster, link the tail cluster's FAT entry to
// it (if there is no tail ... set the directory entry's starting cluster),
// then proceed writing. After the write, update the file size ... and
// rewrite that directory entry's sector."
func (v *Volume) WriteFile(entry *DirEntry, offset uint64, data []byte) error {
	clusterSize := uint64(v.bs.ClusterSize())
	needClusters := int((offset+uint64(len(data))+clusterSize-1)/clusterSize)

	chain, err := v.currentChainAllowEmpty(entry.Cluster)
	if err != nil {
		return err
	}

	tail := uint32(0)
	if len(chain) > 0 {
		tail = chain[len(chain)-1]
	}
	for len(chain) < needClusters {
		next, err := v.AllocCluster()
		if err != nil {
			return err
		}
		if tail == 0 {
			entry.Cluster = next
		} else {
			if err := v.LinkTail(tail, next); err != nil {
				return err
			}
		}
		chain = append(chain, next)
		tail = next
	}

	remaining := data
	pos := offset
	for len(remaining) > 0 {
		idx := int(pos / clusterSize)
		within := pos % clusterSize
		clusterData, err := v.ReadCluster(chain[idx])
		if err != nil {
			return err
		}
		n := copy(clusterData[within:], remaining)
		if err := v.WriteCluster(chain[idx], clusterData); err != nil {
			return err
		}
		remaining = remaining[n:]
		pos += uint64(n)
	}

	if end := offset + uint64(len(data)); end > uint64(entry.Size) {
		entry.Size = uint32(end)
	}
	return v.rewriteEntry(entry)
}

func (v *Volume) currentChainAllowEmpty(start uint32) ([]uint32, error) {
	if start == 0 {
		return nil, nil
	}
	return v.Chain(start)
}

// Truncate resets entry's size to zero, freeing its entire cluster chain
// (spec §4.10's open(..., O_TRUNC) semantics: "resetting size to zero and
// updating on-disk state").
func (v *Volume) Truncate(entry *DirEntry) error {
	if entry.Cluster != 0 {
		if err := v.FreeChain(entry.Cluster); err != nil {
			return err
		}
		entry.Cluster = 0
	}
	entry.Size = 0
	return v.rewriteEntry(entry)
}

// MkdirAt allocates a cluster for a new directory, zeroes it, writes `.`
// and `..` entries, and adds a directory entry for it in parent (spec
// §4.10's mkdir): "`..` in the root uses cluster number 0 per the spec".
func (v *Volume) MkdirAt(parentCluster uint32, name string, now DOSTime) (DirEntry, error) {
	cluster, err := v.AllocCluster()
	if err != nil {
		return DirEntry{}, err
	}

	dotParent := parentCluster
	if parentCluster == v.RootCluster() {
		dotParent = 0
	}

	data, err := v.ReadCluster(cluster)
	if err != nil {
		return DirEntry{}, err
	}
	dot := DirEntry{
		Name: [8]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, Ext: [3]byte{' ', ' ', ' '},
		Attr: AttrDirectory, Cluster: cluster, CreateTime: now, WriteTime: now,
	}
	dotdot := DirEntry{
		Name: [8]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' '}, Ext: [3]byte{' ', ' ', ' '},
		Attr: AttrDirectory, Cluster: dotParent, CreateTime: now, WriteTime: now,
	}
	dot.encode(data[0:dirEntrySize])
	dotdot.encode(data[dirEntrySize : 2*dirEntrySize])
	if err := v.WriteCluster(cluster, data); err != nil {
		return DirEntry{}, err
	}

	return v.CreateEntry(parentCluster, name, AttrDirectory, cluster, 0, now)
}
