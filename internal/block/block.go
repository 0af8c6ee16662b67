// Package block implements the block device registry and vtable (spec
// §4.8): a small fixed-size array of named devices, each exposing
// read/write/flush/info through an interface rather than the spec's
// C-style struct-of-function-pointers. Sector-granular I/O is grounded on
// the teacher's virtio-blk device (internal/devices/virtio/blk.go), which
// itself works in 512-byte-sector terms read/written through positioned
// descriptors; here the positioning is a plain byte offset computed from
// sector*sector_size.
package block

import (
	"fmt"
	"sync"

	"github.com/Acteus/vibos/internal/kerrno"
)

// MaxDevices is the registry's fixed capacity (spec §4.8: "initial MAX = 8").
const MaxDevices = 8

// Info describes a registered device (spec §3's block-device vtable,
// detailed by SPEC_FULL.md §D.5 since spec §4.8 names Info without
// specifying its fields).
type Info struct {
	Name        string
	SectorSize  uint32
	SectorCount uint64
	ReadOnly    bool
	Removable   bool
}

// Device is the vtable every block driver implements. ReadAt/WriteAt work in
// whole sectors: buf must be exactly count*SectorSize bytes.
type Device interface {
	ReadAt(sector uint64, count uint32, buf []byte) error
	WriteAt(sector uint64, count uint32, buf []byte) error
	Flush() error
	Info() Info
}

// Registry is the kernel's single block-device table. Every method takes
// the registry's own mutex, so it is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	devices [MaxDevices]Device
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register assigns dev the first free vdN slot (spec §4.8: "first free vdN
// slot") and returns its name. Fails with ENOSPC if the registry is full.
func (r *Registry) Register(dev Device) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, slot := range r.devices {
		if slot == nil {
			r.devices[i] = dev
			return vdName(i), nil
		}
	}
	return "", kerrno.New("block.Register", kerrno.ENOSPC)
}

// Unregister clears the slot named name, freeing it for reuse.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := indexOf(name)
	if err != nil {
		return err
	}
	if r.devices[i] == nil {
		return kerrno.New("block.Unregister", kerrno.ENOENT)
	}
	r.devices[i] = nil
	return nil
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := indexOf(name)
	if err != nil {
		return nil, err
	}
	dev := r.devices[i]
	if dev == nil {
		return nil, kerrno.New("block.Lookup", kerrno.ENOENT)
	}
	return dev, nil
}

// Read calls through to dev's vtable (spec §4.8). The caller is responsible
// for sizing buf to count*sector_size; a buffer of any other length is
// rejected with EINVAL before the device is called.
func Read(dev Device, sector uint64, count uint32, buf []byte) error {
	if err := checkBufSize(dev, count, buf); err != nil {
		return err
	}
	return dev.ReadAt(sector, count, buf)
}

// Write calls through to dev's vtable (spec §4.8).
//
// Per spec §4.8's failure semantics, a failed call leaves on-disk state
// indeterminate for the attempted range; callers must not assume partial
// success and decide re-read/re-write recovery themselves.
func Write(dev Device, sector uint64, count uint32, buf []byte) error {
	if err := checkBufSize(dev, count, buf); err != nil {
		return err
	}
	return dev.WriteAt(sector, count, buf)
}

// Flush asks dev to make durable any writes still sitting in volatile
// caches (spec §4.8).
func Flush(dev Device) error {
	return dev.Flush()
}

func checkBufSize(dev Device, count uint32, buf []byte) error {
	want := int(count) * int(dev.Info().SectorSize)
	if len(buf) != want {
		return kerrno.New("block", kerrno.EINVAL)
	}
	return nil
}

func vdName(i int) string {
	return fmt.Sprintf("vd%d", i)
}

func indexOf(name string) (int, error) {
	for i := 0; i < MaxDevices; i++ {
		if vdName(i) == name {
			return i, nil
		}
	}
	return 0, kerrno.New("block", kerrno.EINVAL)
}
