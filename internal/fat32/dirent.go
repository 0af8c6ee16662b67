package fat32

import (
	"encoding/binary"

	"github.com/Acteus/vibos/internal/kerrno"
)

// Directory-entry attribute bits, grounded on ostafen-digler's ATTR_*
// constants (same bit layout as the on-disk FAT directory entry format).
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0F // AttrReadOnly|AttrHidden|AttrSystem|AttrVolumeID

	// deletedMarker is the first-byte tombstone for a removed entry (spec
	// §4.9's directory listing: "0xE5 is a tombstone").
	deletedMarker = 0xE5
	freeMarker    = 0x00
)

const dirEntrySize = 32

// dirent byte offsets within a 32-byte slot.
const (
	deName       = 0
	deAttr       = 11
	deCreateTime = 14
	deCreateDate = 16
	deAccessDate = 18
	deClusterHi  = 20
	deWriteTime  = 22
	deWriteDate  = 24
	deClusterLo  = 26
	deSize       = 28
)

// DOSTime is a DOS-format timestamp (SPEC_FULL.md §D.3): 5-bit
// seconds/2, 6-bit minute, 5-bit hour packed into the time word; 5-bit day,
// 4-bit month, 7-bit year-since-1980 packed into the date word.
type DOSTime struct {
	Time uint16
	Date uint16
}

// NewDOSTime packs a calendar timestamp into DOS format.
func NewDOSTime(year int, month, day, hour, min, sec int) DOSTime {
	if year < 1980 {
		year = 1980
	}
	return DOSTime{
		Time: uint16(hour)<<11 | uint16(min)<<5 | uint16(sec/2),
		Date: uint16(year-1980)<<9 | uint16(month)<<5 | uint16(day),
	}
}

// DirEntry is a parsed 32-byte directory entry (spec §3's directory entry
// model, extended by SPEC_FULL.md §D.3 with the three DOS timestamps).
type DirEntry struct {
	Name       [8]byte
	Ext        [3]byte
	Attr       uint8
	Cluster    uint32
	Size       uint32
	CreateTime DOSTime
	WriteTime  DOSTime
	AccessDate uint16

	// slotSector/slotOffset locate this entry's 32-byte slot on disk, set
	// when the entry is read from or written to a directory, used by
	// Volume.rewriteEntry to persist in-place edits (size/timestamp/rename).
	slotSector uint32
	slotOffset uint32
}

// IsDir reports whether the entry is a directory.
func (d *DirEntry) IsDir() bool { return d.Attr&AttrDirectory != 0 }

// FullName renders the 8.3 name as "NAME.EXT" (or "NAME" with no
// extension), trimming trailing spaces.
func (d *DirEntry) FullName() string {
	name := trimTrailingSpaces(d.Name[:])
	ext := trimTrailingSpaces(d.Ext[:])
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func trimTrailingSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

func parseDirEntry(buf []byte, sector, offset uint32) DirEntry {
	var d DirEntry
	copy(d.Name[:], buf[deName:deName+8])
	copy(d.Ext[:], buf[deName+8:deName+11])
	d.Attr = buf[deAttr]
	hi := binary.LittleEndian.Uint16(buf[deClusterHi:])
	lo := binary.LittleEndian.Uint16(buf[deClusterLo:])
	d.Cluster = uint32(hi)<<16 | uint32(lo)
	d.Size = binary.LittleEndian.Uint32(buf[deSize:])
	d.CreateTime = DOSTime{
		Time: binary.LittleEndian.Uint16(buf[deCreateTime:]),
		Date: binary.LittleEndian.Uint16(buf[deCreateDate:]),
	}
	d.WriteTime = DOSTime{
		Time: binary.LittleEndian.Uint16(buf[deWriteTime:]),
		Date: binary.LittleEndian.Uint16(buf[deWriteDate:]),
	}
	d.AccessDate = binary.LittleEndian.Uint16(buf[deAccessDate:])
	d.slotSector = sector
	d.slotOffset = offset
	return d
}

func (d *DirEntry) encode(buf []byte) {
	copy(buf[deName:deName+8], d.Name[:])
	copy(buf[deName+8:deName+11], d.Ext[:])
	buf[deAttr] = d.Attr
	binary.LittleEndian.PutUint16(buf[deClusterHi:], uint16(d.Cluster>>16))
	binary.LittleEndian.PutUint16(buf[deClusterLo:], uint16(d.Cluster))
	binary.LittleEndian.PutUint32(buf[deSize:], d.Size)
	binary.LittleEndian.PutUint16(buf[deCreateTime:], d.CreateTime.Time)
	binary.LittleEndian.PutUint16(buf[deCreateDate:], d.CreateTime.Date)
	binary.LittleEndian.PutUint16(buf[deWriteTime:], d.WriteTime.Time)
	binary.LittleEndian.PutUint16(buf[deWriteDate:], d.WriteTime.Date)
	binary.LittleEndian.PutUint16(buf[deAccessDate:], d.AccessDate)
}

// to8dot3 converts name to uppercase 8.3 form (spec §4.9's lookup rule:
// "convert the requested name to uppercase 8.3 form"). Only ASCII letters
// are case-folded, matching the spec's "case-insensitive match only for
// ASCII letters".
func to8dot3(name string) (base [8]byte, ext [3]byte) {
	for i := range base {
		base[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}

	stem, extension := splitExt(name)
	for i := 0; i < len(stem) && i < 8; i++ {
		base[i] = upperASCII(stem[i])
	}
	for i := 0; i < len(extension) && i < 3; i++ {
		ext[i] = upperASCII(extension[i])
	}
	return base, ext
}

func splitExt(name string) (stem, ext string) {
	dot := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return name, ""
	}
	return name[:dot], name[dot+1:]
}

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// ListDir traverses dir's cluster chain yielding every real entry (spec
// §4.9's directory listing): the terminator and tombstone/long-name/
// volume-ID filtering rules are applied here so callers only ever see
// real, navigable entries.
func (v *Volume) ListDir(startCluster uint32) ([]DirEntry, error) {
	var entries []DirEntry
	chain, err := v.Chain(startCluster)
	if err != nil {
		return nil, err
	}
	for _, c := range chain {
		data, err := v.ReadCluster(c)
		if err != nil {
			return nil, err
		}
		sector := v.bs.ClusterToSector(c)
		for off := uint32(0); off+dirEntrySize <= uint32(len(data)); off += dirEntrySize {
			slot := data[off : off+dirEntrySize]
			first := slot[deName]
			if first == freeMarker {
				return entries, nil // spec §4.9: first byte 0x00 terminates the directory
			}
			if first == deletedMarker {
				continue
			}
			attr := slot[deAttr]
			if attr == AttrLongName {
				continue // long-filename fragment: preserved by the iterator, not surfaced
			}
			if attr&AttrVolumeID != 0 {
				continue
			}
			entrySector := sector + off/uint32(v.bs.SectorSize)
			entryOff := off % uint32(v.bs.SectorSize)
			entries = append(entries, parseDirEntry(slot, entrySector, entryOff))
		}
	}
	return entries, nil
}

// Lookup finds name within the directory starting at startCluster (spec
// §4.9's lookup). Returns ENOENT if not found.
func (v *Volume) Lookup(startCluster uint32, name string) (DirEntry, error) {
	base, ext := to8dot3(name)
	entries, err := v.ListDir(startCluster)
	if err != nil {
		return DirEntry{}, err
	}
	for _, e := range entries {
		if e.Name == base && e.Ext == ext {
			return e, nil
		}
	}
	return DirEntry{}, kerrno.New("fat32.Lookup", kerrno.ENOENT)
}

// CreateEntry scans dir's cluster chain for a free slot (first byte 0x00 or
// 0xE5); if none exists, allocates and links a new cluster for the
// directory, zeroes it, and uses slot 0 (spec §4.9's directory entry
// creation).
func (v *Volume) CreateEntry(dirStartCluster uint32, name string, attr uint8, cluster uint32, size uint32, now DOSTime) (DirEntry, error) {
	base, ext := to8dot3(name)
	if _, err := v.Lookup(dirStartCluster, name); err == nil {
		return DirEntry{}, kerrno.New("fat32.CreateEntry", kerrno.EEXIST)
	}

	entry := DirEntry{Name: base, Ext: ext, Attr: attr, Cluster: cluster, Size: size, CreateTime: now, WriteTime: now}

	chain, err := v.Chain(dirStartCluster)
	if err != nil {
		return DirEntry{}, err
	}

	for _, c := range chain {
		data, err := v.ReadCluster(c)
		if err != nil {
			return DirEntry{}, err
		}
		for off := uint32(0); off+dirEntrySize <= uint32(len(data)); off += dirEntrySize {
			first := data[off]
			if first != freeMarker && first != deletedMarker {
				continue
			}
			entry.encode(data[off : off+dirEntrySize])
			if err := v.WriteCluster(c, data); err != nil {
				return DirEntry{}, err
			}
			entry.slotSector = v.bs.ClusterToSector(c) + off/uint32(v.bs.SectorSize)
			entry.slotOffset = off % uint32(v.bs.SectorSize)
			return entry, nil
		}
	}

	// No free slot in the existing chain: allocate a new cluster, link it,
	// zero it, use slot 0 (spec §4.9).
	tail := chain[len(chain)-1]
	next, err := v.AllocCluster()
	if err != nil {
		return DirEntry{}, err
	}
	if err := v.LinkTail(tail, next); err != nil {
		return DirEntry{}, err
	}
	data, err := v.ReadCluster(next)
	if err != nil {
		return DirEntry{}, err
	}
	entry.encode(data[0:dirEntrySize])
	if err := v.WriteCluster(next, data); err != nil {
		return DirEntry{}, err
	}
	entry.slotSector = v.bs.ClusterToSector(next)
	entry.slotOffset = 0
	return entry, nil
}

// rewriteEntry persists an in-place edit to an entry's already-located slot
// (used after updating size/cluster/timestamps, e.g. spec §4.9's file
// extension "rewrite that directory entry's sector").
func (v *Volume) rewriteEntry(e *DirEntry) error {
	sectorSize := uint32(v.bs.SectorSize)
	buf := make([]byte, sectorSize)
	if err := v.readSectors(e.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.rewriteEntry", "", kerrno.EIO, err)
	}
	e.encode(buf[e.slotOffset : e.slotOffset+dirEntrySize])
	if err := v.writeSectors(e.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.rewriteEntry", "", kerrno.EIO, err)
	}
	return nil
}

// Unlink removes name from the directory starting at dirStartCluster
// (SPEC_FULL.md §D.1): marks the slot's first byte 0xE5 and frees the
// entry's cluster chain. The slot itself is not reused until a later
// CreateEntry scan reaches it.
func (v *Volume) Unlink(dirStartCluster uint32, name string) error {
	entry, err := v.Lookup(dirStartCluster, name)
	if err != nil {
		return err
	}
	buf := make([]byte, v.bs.SectorSize)
	if err := v.readSectors(entry.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.Unlink", "", kerrno.EIO, err)
	}
	buf[entry.slotOffset+deName] = deletedMarker
	if err := v.writeSectors(entry.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.Unlink", "", kerrno.EIO, err)
	}
	if entry.Cluster != 0 {
		if err := v.FreeChain(entry.Cluster); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves name from one directory to another, or renames it in place
// if srcDir == dstDir (SPEC_FULL.md §D.1): in-place rename rewrites the
// name bytes; cross-directory rename creates a new entry in dstDir
// (copying cluster/size/timestamps) and unlinks the source.
func (v *Volume) Rename(srcDir uint32, srcName string, dstDir uint32, dstName string) error {
	entry, err := v.Lookup(srcDir, srcName)
	if err != nil {
		return err
	}

	if srcDir == dstDir {
		base, ext := to8dot3(dstName)
		entry.Name, entry.Ext = base, ext
		return v.rewriteEntry(&entry)
	}

	if _, err := v.CreateEntry(dstDir, dstName, entry.Attr, entry.Cluster, entry.Size, entry.WriteTime); err != nil {
		return err
	}
	return v.unlinkSlotOnly(srcDir, srcName)
}

// unlinkSlotOnly removes name's directory slot without freeing its cluster
// chain, used by Rename's cross-directory move where the destination entry
// now owns that chain.
func (v *Volume) unlinkSlotOnly(dirStartCluster uint32, name string) error {
	entry, err := v.Lookup(dirStartCluster, name)
	if err != nil {
		return err
	}
	buf := make([]byte, v.bs.SectorSize)
	if err := v.readSectors(entry.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.Rename", "", kerrno.EIO, err)
	}
	buf[entry.slotOffset+deName] = deletedMarker
	if err := v.writeSectors(entry.slotSector, 1, buf); err != nil {
		return kerrno.Newf("fat32.Rename", "", kerrno.EIO, err)
	}
	return nil
}
