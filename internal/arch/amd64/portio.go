package amd64

import "github.com/Acteus/vibos/internal/arch"

// inb/outb/... are implemented in portio_amd64.s: port-mapped I/O has no
// portable Go or ecosystem API (it's the IN/OUT instruction family), so
// like the MSR accessors this is hand-written assembly rather than a
// library call.

//go:noescape
func inb(port uint16) uint8

//go:noescape
func inw(port uint16) uint16

//go:noescape
func inl(port uint16) uint32

//go:noescape
func outb(port uint16, v uint8)

//go:noescape
func outw(port uint16, v uint16)

//go:noescape
func outl(port uint16, v uint32)

// PortIO implements arch.PortIO for real amd64 hardware.
type PortIO struct{}

var _ arch.PortIO = PortIO{}

func (PortIO) InB(port uint16) uint8    { return inb(port) }
func (PortIO) InW(port uint16) uint16   { return inw(port) }
func (PortIO) InL(port uint16) uint32   { return inl(port) }
func (PortIO) OutB(port uint16, v uint8)  { outb(port, v) }
func (PortIO) OutW(port uint16, v uint16) { outw(port, v) }
func (PortIO) OutL(port uint16, v uint32) { outl(port, v) }
