// Package fat32 implements the FAT32 driver (spec §4.9): boot-sector
// parsing, cluster-chain navigation, redundant-copy FAT mutation,
// directory-entry CRUD, and file read/write with extension. Boot-sector
// field layout is grounded on ostafen-digler's FatBootSector struct (a
// direct port of the C fat_boot_sector layout); every operation past boot-
// sector parsing (the digler snippet stops there) follows spec §4.9's prose
// and SPEC_FULL.md §D's supplemented rename/unlink/timestamp/free-count
// behavior.
package fat32

import (
	"encoding/binary"

	"github.com/Acteus/vibos/internal/kerrno"
)

// BootSectorSize is the fixed size of the BPB (spec §4.9: "reads logical
// sector 0").
const BootSectorSize = 512

// Cluster-chain sentinel values (spec §4.9): entries are masked by
// clusterMask before comparison, since FAT32 reserves the top 4 bits.
const (
	clusterMask   = 0x0FFFFFFF
	clusterFree   = 0x00000000
	clusterBad    = 0x0FFFFFF7
	clusterEOCMin = 0x0FFFFFF8
	// clusterEOCLink is the specific end-of-chain value this driver writes
	// when terminating a chain (any value >= clusterEOCMin is a valid EOC
	// marker; this is simply the one we produce).
	clusterEOCLink = 0x0FFFFFFF
)

// BootSector is the parsed BIOS Parameter Block. Field layout is grounded
// on ostafen-digler's FatBootSector (offsets unchanged); FAT32-only fields
// are kept as typed values rather than raw byte arrays, since this driver
// targets FAT32 exclusively, never FAT12/16.
type BootSector struct {
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	TotalSectors      uint32
	FATSize           uint32 // sectors per FAT (FAT32-only field, offset 0x24)
	RootCluster       uint32
	InfoSector        uint16
	BackupBootSector  uint16
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

// byte offsets within the 512-byte boot sector, matching
// ostafen-digler's FatBootSector layout.
const (
	offSectorSize        = 0x0B
	offSectorsPerCluster = 0x0D
	offReservedSectors   = 0x0E
	offNumFATs           = 0x10
	offSectors16         = 0x13
	offFATSize16         = 0x16
	offTotalSect32       = 0x20
	offFATSize32         = 0x24
	offRootCluster       = 0x2C
	offInfoSector        = 0x30
	offBackupBoot        = 0x32
	offVolumeLabel       = 0x47
	offFileSystemType    = 0x52
	offMarker            = 0x1FE
)

// ParseBootSector parses and validates a 512-byte boot sector (spec §4.9
// mount checks, extended by SPEC_FULL.md §D.2's additional sanity checks).
// Every violation is a class-4 consistency error (spec §7), surfaced here as
// EINVAL — mount failure, never a panic, since a corrupt or foreign volume
// is an expected operational condition, not a programming bug.
func ParseBootSector(data []byte) (*BootSector, error) {
	if len(data) != BootSectorSize {
		return nil, kerrno.New("fat32.ParseBootSector", kerrno.EINVAL)
	}

	bs := &BootSector{
		SectorSize:        binary.LittleEndian.Uint16(data[offSectorSize:]),
		SectorsPerCluster: data[offSectorsPerCluster],
		ReservedSectors:   binary.LittleEndian.Uint16(data[offReservedSectors:]),
		NumFATs:           data[offNumFATs],
		FATSize:           binary.LittleEndian.Uint32(data[offFATSize32:]),
		RootCluster:       binary.LittleEndian.Uint32(data[offRootCluster:]),
		InfoSector:        binary.LittleEndian.Uint16(data[offInfoSector:]),
		BackupBootSector:  binary.LittleEndian.Uint16(data[offBackupBoot:]),
	}
	copy(bs.VolumeLabel[:], data[offVolumeLabel:offVolumeLabel+11])
	copy(bs.FileSystemType[:], data[offFileSystemType:offFileSystemType+8])

	sectors16 := binary.LittleEndian.Uint16(data[offSectors16:])
	if sectors16 != 0 {
		bs.TotalSectors = uint32(sectors16)
	} else {
		bs.TotalSectors = binary.LittleEndian.Uint32(data[offTotalSect32:])
	}

	fatSize16 := binary.LittleEndian.Uint16(data[offFATSize16:])

	if err := bs.validate(fatSize16, data); err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BootSector) validate(fatSize16 uint16, data []byte) error {
	if !powerOfTwoInRange(uint32(bs.SectorSize), 512, 4096) {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	// fat_size_16 == 0 is spec §4.9's FAT32 discriminant: FAT12/16 always
	// carry a nonzero 16-bit FAT size field.
	if fatSize16 != 0 {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	if binary.LittleEndian.Uint16(data[offMarker:]) != 0xAA55 {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	// SPEC_FULL.md §D.2's supplemented sanity checks.
	if bs.NumFATs < 1 || bs.NumFATs > 4 {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	if !powerOfTwoInRange(uint32(bs.SectorsPerCluster), 1, 128) {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	if bs.ReservedSectors == 0 {
		return kerrno.New("fat32.mount", kerrno.EINVAL)
	}
	return nil
}

func powerOfTwoInRange(n, lo, hi uint32) bool {
	if n < lo || n > hi {
		return false
	}
	return n&(n-1) == 0
}

// FATStartSector is the first sector of the first FAT copy (spec §4.9:
// "FAT start = reserved sector count").
func (bs *BootSector) FATStartSector() uint32 {
	return uint32(bs.ReservedSectors)
}

// DataStartSector is the first sector of the data (cluster) region (spec
// §4.9: "data start = FAT start + (FAT count x FAT size in sectors)").
func (bs *BootSector) DataStartSector() uint32 {
	return bs.FATStartSector() + uint32(bs.NumFATs)*bs.FATSize
}

// ClusterSize is the size in bytes of one cluster (spec §4.9: "sectors-per-
// cluster x bytes-per-sector").
func (bs *BootSector) ClusterSize() uint32 {
	return uint32(bs.SectorsPerCluster) * uint32(bs.SectorSize)
}

// TotalDataClusters is the number of addressable data clusters (spec §4.9).
func (bs *BootSector) TotalDataClusters() uint32 {
	dataSectors := bs.TotalSectors - bs.DataStartSector()
	return dataSectors / uint32(bs.SectorsPerCluster)
}

// ClusterToSector converts a cluster number to its first logical sector
// (cluster 2 is the first valid data cluster in every FAT revision).
func (bs *BootSector) ClusterToSector(cluster uint32) uint32 {
	return bs.DataStartSector() + (cluster-2)*uint32(bs.SectorsPerCluster)
}
