// Package serial implements the kernel's UART drivers (spec §4.11, external
// interfaces): PL011 on ARM virt platforms, 16550 at COM1 on x86. Both
// expose the same small character-sink/input-source contract so
// internal/klog and internal/kapi can treat either as an io.Writer/
// io.Reader without caring which architecture they're on.
//
// Register layout is grounded on the teacher's device models
// (internal/devices/arm64/serial/pl011_device.go and
// internal/devices/amd64/serial/serial.go), but the frame is flipped: the
// teacher emulates the device side of a register interface for a guest to
// poke; these types implement the driver side, issuing the reads and
// writes a real guest kernel would against a RegisterSpace/PortSpace that
// internal/arch's HAL backends supply over real MMIO/port I/O.
package serial

import "github.com/Acteus/vibos/internal/kerrno"

// RegisterSpace is the minimal MMIO accessor a PL011 driver needs. A real
// arm64 HAL backend implements this over genuine memory-mapped registers;
// tests use an in-memory fake.
type RegisterSpace interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// PortSpace is the minimal port-I/O accessor a 16550 driver needs,
// implemented over real `in`/`out` instructions by internal/arch/amd64.
type PortSpace interface {
	In8(port uint16) byte
	Out8(port uint16, value byte)
}

// crlf passes p to putc byte by byte, translating a bare '\n' to "\r\n" (spec §9: "Newlines
// are emitted as CRLF"). A '\n' immediately following a '\r' the caller
// already supplied is passed through unchanged.
func crlf(p []byte, putc func(byte)) {
	prevCR := false
	for _, b := range p {
		if b == '\n' && !prevCR {
			putc('\r')
		}
		putc(b)
		prevCR = b == '\r'
	}
}

// Both drivers' Init programs 8 data bits, no parity, 1 stop bit. The
// baud-rate divisor is not set by Init: the caller programs it with
// SetBaudDivisor, since it depends on the platform's UART clock.

// requireRegisterSpace/requirePortSpace guard against a driver constructed
// without its backing accessor, a class-1 invalid-argument condition
// (spec §7.1).
func requireRegisterSpace(r RegisterSpace) error {
	if r == nil {
		return kerrno.New("serial.PL011", kerrno.EINVAL)
	}
	return nil
}

func requirePortSpace(p PortSpace) error {
	if p == nil {
		return kerrno.New("serial.UART16550", kerrno.EINVAL)
	}
	return nil
}
