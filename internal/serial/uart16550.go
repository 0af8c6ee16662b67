package serial

// 16550 register offsets (relative to the base port) and status bits,
// grounded on the teacher's internal/devices/amd64/serial/serial.go
// (same register map, driven from the driver side rather than decoded on
// the emulated-device side).
const (
	uart16550RegData = 0 // DLAB=0: data; DLAB=1: divisor latch low
	uart16550RegIER  = 1 // DLAB=0: interrupt enable; DLAB=1: divisor latch high
	uart16550RegFCR  = 2
	uart16550RegLCR  = 3
	uart16550RegMCR  = 4
	uart16550RegLSR  = 5

	uart16550LCRDLAB    = 1 << 7
	uart16550LCRWordLen8 = 0x03

	uart16550LSRDataReady = 1 << 0
	uart16550LSRTHRE      = 1 << 5

	uart16550FCREnable     = 1 << 0
	uart16550FCRClearRX    = 1 << 1
	uart16550FCRClearTX    = 1 << 2
	uart16550FCRTrigger14  = 0xC0

	uart16550COM1 = 0x3F8
)

// UART16550 is the x86 16550 driver, addressed via port I/O at COM1
// (0x3F8) by default.
type UART16550 struct {
	ports PortSpace
	base  uint16
}

// NewUART16550 wraps ports, the HAL-provided port-I/O accessor, talking to
// the UART at base (spec §9: "16550 at COM1 0x3F8 on x86").
func NewUART16550(ports PortSpace, base uint16) *UART16550 {
	if base == 0 {
		base = uart16550COM1
	}
	return &UART16550{ports: ports, base: base}
}

func (u *UART16550) reg(offset uint16) uint16 { return u.base + offset }

// Init programs 8N1 framing, enables and clears the FIFOs, and leaves the
// baud-rate divisor to SetBaudDivisor.
func (u *UART16550) Init() error {
	if err := requirePortSpace(u.ports); err != nil {
		return err
	}
	u.ports.Out8(u.reg(uart16550RegLCR), uart16550LCRWordLen8)
	u.ports.Out8(u.reg(uart16550RegFCR), uart16550FCREnable|uart16550FCRClearRX|uart16550FCRClearTX|uart16550FCRTrigger14)
	u.ports.Out8(u.reg(uart16550RegIER), 0)
	u.ports.Out8(u.reg(uart16550RegMCR), 0)
	return nil
}

// SetBaudDivisor programs the divisor latch directly, computed by the
// caller from the UART's 115200*16 reference clock.
func (u *UART16550) SetBaudDivisor(divisor uint16) {
	lcr := u.ports.In8(u.reg(uart16550RegLCR))
	u.ports.Out8(u.reg(uart16550RegLCR), lcr|uart16550LCRDLAB)
	u.ports.Out8(u.reg(uart16550RegData), byte(divisor))
	u.ports.Out8(u.reg(uart16550RegIER), byte(divisor>>8))
	u.ports.Out8(u.reg(uart16550RegLCR), lcr)
}

func (u *UART16550) putByte(b byte) {
	for u.ports.In8(u.reg(uart16550RegLSR))&uart16550LSRTHRE == 0 {
	}
	u.ports.Out8(u.reg(uart16550RegData), b)
}

// Write implements io.Writer, translating bare '\n' to CRLF.
func (u *UART16550) Write(data []byte) (int, error) {
	if err := requirePortSpace(u.ports); err != nil {
		return 0, err
	}
	crlf(data, u.putByte)
	return len(data), nil
}

// Read implements io.Reader, blocking until at least one byte is available.
func (u *UART16550) Read(buf []byte) (int, error) {
	if err := requirePortSpace(u.ports); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	for u.ports.In8(u.reg(uart16550RegLSR))&uart16550LSRDataReady == 0 {
	}
	n := 0
	for n < len(buf) && u.ports.In8(u.reg(uart16550RegLSR))&uart16550LSRDataReady != 0 {
		buf[n] = u.ports.In8(u.reg(uart16550RegData))
		n++
	}
	return n, nil
}
