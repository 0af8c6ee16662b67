package fat32

import (
	"encoding/binary"

	"github.com/google/btree"

	"github.com/Acteus/vibos/internal/block"
	"github.com/Acteus/vibos/internal/kerrno"
)

// cacheThresholdBytes is the "below a threshold" cutoff spec §4.9 leaves
// unspecified a concrete value for; 4 MiB is the example the spec itself
// gives ("e.g., 4 MiB").
const cacheThresholdBytes = 4 * 1024 * 1024

// Volume is a mounted FAT32 filesystem. Cluster-chain navigation, FAT
// mutation, and allocation are grounded on spec §4.9's prose; the boot-
// sector layout is grounded on ostafen-digler's FatBootSector.
type Volume struct {
	dev block.Device
	bs  *BootSector

	fatCache   []byte // authoritative read cache of FAT copy 0, nil if not cached
	fatBytes   uint32

	freeIndex    *btree.BTreeG[clusterItem]
	freeIndexed  bool // whether freeIndex has been built via the full linear scan
	freeClusters uint32
}

type clusterItem uint32

func clusterLess(a, b clusterItem) bool { return a < b }

// Mount reads the boot sector from dev and validates it (spec §4.9). The
// device's reported sector size must match the volume's, since every
// cluster/FAT-sector computation here is expressed in the volume's sector
// size.
func Mount(dev block.Device) (*Volume, error) {
	buf := make([]byte, BootSectorSize)
	if err := dev.ReadAt(0, BootSectorSize/dev.Info().SectorSize, buf); err != nil {
		return nil, kerrno.Newf("fat32.Mount", "", kerrno.EIO, err)
	}
	bs, err := ParseBootSector(buf)
	if err != nil {
		return nil, err
	}
	if uint16(dev.Info().SectorSize) != bs.SectorSize {
		return nil, kerrno.New("fat32.Mount", kerrno.EINVAL)
	}

	v := &Volume{
		dev:       dev,
		bs:        bs,
		fatBytes:  bs.FATSize * uint32(bs.SectorSize),
		freeIndex: btree.NewG[clusterItem](32, clusterLess),
	}

	if v.fatBytes <= cacheThresholdBytes {
		cache := make([]byte, v.fatBytes)
		if err := v.readSectors(bs.FATStartSector(), bs.FATSize, cache); err != nil {
			return nil, kerrno.Newf("fat32.Mount", "", kerrno.EIO, err)
		}
		v.fatCache = cache
	}

	return v, nil
}

// BootSector returns the volume's parsed boot sector.
func (v *Volume) BootSector() *BootSector { return v.bs }

// RootCluster is the starting cluster of the root directory (spec §4.9).
func (v *Volume) RootCluster() uint32 { return v.bs.RootCluster }

func (v *Volume) readSectors(start, count uint32, buf []byte) error {
	return v.dev.ReadAt(uint64(start), count, buf)
}

func (v *Volume) writeSectors(start, count uint32, buf []byte) error {
	return v.dev.WriteAt(uint64(start), count, buf)
}

// readRawEntry returns the raw (unmasked) 32-bit FAT entry for cluster c.
func (v *Volume) readRawEntry(c uint32) (uint32, error) {
	byteOff := c * 4
	if v.fatCache != nil {
		if int(byteOff)+4 > len(v.fatCache) {
			return 0, kerrno.New("fat32.readRawEntry", kerrno.EINVAL)
		}
		return binary.LittleEndian.Uint32(v.fatCache[byteOff:]), nil
	}

	sector := v.bs.FATStartSector() + byteOff/uint32(v.bs.SectorSize)
	off := byteOff % uint32(v.bs.SectorSize)
	buf := make([]byte, v.bs.SectorSize)
	if err := v.readSectors(sector, 1, buf); err != nil {
		// spec §4.9: "I/O error on a FAT read returns the end-of-chain
		// value (which stops traversal safely)".
		return clusterEOCLink, nil
	}
	return binary.LittleEndian.Uint32(buf[off:]), nil
}

// writeRawEntry writes value to cluster c's FAT entry in every redundant
// copy, sequentially (spec §4.9's redundancy invariant), and to the cache
// if one exists. The top 4 bits of the existing on-disk word are preserved
// (FAT32 reserves them); value's own top 4 bits are ignored.
func (v *Volume) writeRawEntry(c, value uint32) error {
	existing, err := v.readRawEntry(c)
	if err != nil {
		return err
	}
	word := (existing &^ clusterMask) | (value & clusterMask)

	byteOff := c * 4
	var wordBuf [4]byte
	binary.LittleEndian.PutUint32(wordBuf[:], word)

	sectorSize := uint32(v.bs.SectorSize)
	localSector := byteOff / sectorSize
	localOff := byteOff % sectorSize

	for i := uint8(0); i < v.bs.NumFATs; i++ {
		sector := v.bs.FATStartSector() + uint32(i)*v.bs.FATSize + localSector
		buf := make([]byte, sectorSize)
		if err := v.readSectors(sector, 1, buf); err != nil {
			return kerrno.Newf("fat32.writeRawEntry", "", kerrno.EIO, err)
		}
		copy(buf[localOff:], wordBuf[:])
		if err := v.writeSectors(sector, 1, buf); err != nil {
			// spec §4.9: a write I/O error returns failure without partial
			// commit of the remaining copies; copies already written stand,
			// matching the documented "copies [0,k) and [k,N) disagree"
			// recoverable-by-retry state.
			return kerrno.Newf("fat32.writeRawEntry", "", kerrno.EIO, err)
		}
	}

	if v.fatCache != nil {
		copy(v.fatCache[byteOff:], wordBuf[:])
	}
	return nil
}

// NextCluster returns the successor of cluster c and whether c is the last
// cluster in its chain (spec §4.9's cluster-chain navigation).
func (v *Volume) NextCluster(c uint32) (next uint32, isEnd bool, err error) {
	raw, err := v.readRawEntry(c)
	if err != nil {
		return 0, false, err
	}
	entry := raw & clusterMask
	if entry >= clusterEOCMin {
		return 0, true, nil
	}
	if entry == clusterFree || entry == clusterBad {
		return 0, true, nil
	}
	return entry, false, nil
}

// Chain returns every cluster in the chain starting at start, in order.
func (v *Volume) Chain(start uint32) ([]uint32, error) {
	var chain []uint32
	c := start
	for {
		chain = append(chain, c)
		next, end, err := v.NextCluster(c)
		if err != nil {
			return nil, err
		}
		if end {
			return chain, nil
		}
		c = next
	}
}

// AllocCluster finds a free cluster (preferring the lowest-numbered one
// once the free index is warm), marks it end-of-chain, zeroes its on-disk
// contents (spec §4.9: "newly allocated clusters ... must be zeroed before
// being linked"), and returns its number.
func (v *Volume) AllocCluster() (uint32, error) {
	c, err := v.takeFreeCluster()
	if err != nil {
		return 0, err
	}
	if err := v.writeRawEntry(c, clusterEOCLink); err != nil {
		return 0, err
	}
	if err := v.zeroCluster(c); err != nil {
		return 0, err
	}
	v.freeClusters--
	return c, nil
}

// takeFreeCluster returns a free cluster number without marking it
// allocated, building the free index via the spec-mandated linear scan on
// first use (github.com/google/btree then keeps subsequent lookups O(log n)
// instead of a repeated linear scan).
func (v *Volume) takeFreeCluster() (uint32, error) {
	if !v.freeIndexed {
		if err := v.buildFreeIndex(); err != nil {
			return 0, err
		}
	}
	it, ok := v.freeIndex.Min()
	if !ok {
		return 0, kerrno.New("fat32.AllocCluster", kerrno.ENOSPC)
	}
	v.freeIndex.Delete(it)
	return uint32(it), nil
}

// buildFreeIndex performs the spec's linear scan from cluster 2, recording
// every free cluster into the btree index and counting the total.
func (v *Volume) buildFreeIndex() error {
	total := v.bs.TotalDataClusters()
	var free uint32
	for c := uint32(2); c < total+2; c++ {
		raw, err := v.readRawEntry(c)
		if err != nil {
			return err
		}
		if raw&clusterMask == clusterFree {
			v.freeIndex.ReplaceOrInsert(clusterItem(c))
			free++
		}
	}
	v.freeIndexed = true
	v.freeClusters = free
	return nil
}

// FreeChain releases every cluster in the chain starting at start back to
// the free pool (SPEC_FULL.md §D.1's unlink semantics: "frees its cluster
// chain, each cluster's FAT entry reset to free in all redundant copies").
func (v *Volume) FreeChain(start uint32) error {
	chain, err := v.Chain(start)
	if err != nil {
		return err
	}
	for _, c := range chain {
		if err := v.writeRawEntry(c, clusterFree); err != nil {
			return err
		}
		if v.freeIndexed {
			v.freeIndex.ReplaceOrInsert(clusterItem(c))
		}
		v.freeClusters++
	}
	return nil
}

// LinkTail sets tail's FAT entry to point at next, used when extending a
// chain (spec §4.9's file extension: "link the tail cluster's FAT entry").
func (v *Volume) LinkTail(tail, next uint32) error {
	return v.writeRawEntry(tail, next)
}

func (v *Volume) zeroCluster(c uint32) error {
	buf := make([]byte, v.bs.ClusterSize())
	return v.writeSectors(v.bs.ClusterToSector(c), uint32(v.bs.SectorsPerCluster), buf)
}

// FreeClusters returns the cached free-cluster count (SPEC_FULL.md §D.4),
// an optimization over recomputing it on every query; Fsck recomputes it
// from scratch and is authoritative.
func (v *Volume) FreeClusters() uint32 {
	if !v.freeIndexed {
		_ = v.buildFreeIndex()
	}
	return v.freeClusters
}

// Fsck recomputes the free-cluster count from a fresh linear scan,
// discarding any previously built index (SPEC_FULL.md §D.4: "on-disk is
// truth" invariant for the FAT cache).
func (v *Volume) Fsck() (uint32, error) {
	v.freeIndex = btree.NewG[clusterItem](32, clusterLess)
	v.freeIndexed = false
	if err := v.buildFreeIndex(); err != nil {
		return 0, err
	}
	return v.freeClusters, nil
}

// ReadCluster reads the full contents of cluster c.
func (v *Volume) ReadCluster(c uint32) ([]byte, error) {
	buf := make([]byte, v.bs.ClusterSize())
	if err := v.readSectors(v.bs.ClusterToSector(c), uint32(v.bs.SectorsPerCluster), buf); err != nil {
		return nil, kerrno.Newf("fat32.ReadCluster", "", kerrno.EIO, err)
	}
	return buf, nil
}

// WriteCluster overwrites the full contents of cluster c. data must be
// exactly one cluster in size.
func (v *Volume) WriteCluster(c uint32, data []byte) error {
	if uint32(len(data)) != v.bs.ClusterSize() {
		return kerrno.New("fat32.WriteCluster", kerrno.EINVAL)
	}
	if err := v.writeSectors(v.bs.ClusterToSector(c), uint32(v.bs.SectorsPerCluster), data); err != nil {
		return kerrno.Newf("fat32.WriteCluster", "", kerrno.EIO, err)
	}
	return nil
}
