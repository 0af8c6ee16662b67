package serial

// PL011 register offsets and flag bits, grounded on the teacher's
// internal/devices/arm64/serial/pl011_device.go (the same layout, read from
// the driver side instead of the emulated-device side).
const (
	pl011DR  = 0x00
	pl011FR  = 0x18
	pl011IBRD = 0x24
	pl011FBRD = 0x28
	pl011LCRH = 0x2c
	pl011CR   = 0x30
	pl011IMSC = 0x38
	pl011ICR  = 0x44

	pl011FlagTxFull  = 1 << 5
	pl011FlagRxEmpty = 1 << 4

	pl011CREnableUART = 1 << 0
	pl011CREnableTX   = 1 << 8
	pl011CREnableRX   = 1 << 9

	pl011LCRHFIFOEnable = 1 << 4
	pl011LCRHWordLen8   = 3 << 5
)

// PL011 is the ARM PrimeCell UART driver. It satisfies io.Writer and
// io.Reader so internal/klog and internal/kapi can use it as the kernel's
// primary character sink/input source on arm64.
type PL011 struct {
	regs RegisterSpace
}

// NewPL011 wraps regs, the HAL-provided accessor for the UART's
// memory-mapped register block.
func NewPL011(regs RegisterSpace) *PL011 {
	return &PL011{regs: regs}
}

// Init programs the line control and enables TX/RX, leaving the baud-rate
// divisor to the caller (it depends on the platform's UART clock, which
// this package does not know).
func (p *PL011) Init() error {
	if err := requireRegisterSpace(p.regs); err != nil {
		return err
	}
	p.regs.Write32(pl011LCRH, pl011LCRHWordLen8|pl011LCRHFIFOEnable)
	p.regs.Write32(pl011IMSC, 0)
	p.regs.Write32(pl011CR, pl011CREnableUART|pl011CREnableTX|pl011CREnableRX)
	return nil
}

// SetBaudDivisor programs IBRD/FBRD directly, computed by the caller from
// the platform's UART input clock and the target 115200-8N1 rate.
func (p *PL011) SetBaudDivisor(integer, fractional uint32) {
	p.regs.Write32(pl011IBRD, integer)
	p.regs.Write32(pl011FBRD, fractional)
}

// putByte spins until the TX FIFO has room, then writes one byte.
func (p *PL011) putByte(b byte) {
	for p.regs.Read32(pl011FR)&pl011FlagTxFull != 0 {
	}
	p.regs.Write32(pl011DR, uint32(b))
}

// Write implements io.Writer, translating bare '\n' to CRLF.
func (p *PL011) Write(data []byte) (int, error) {
	if err := requireRegisterSpace(p.regs); err != nil {
		return 0, err
	}
	crlf(data, p.putByte)
	return len(data), nil
}

// Read implements io.Reader, blocking until at least one byte is available.
func (p *PL011) Read(buf []byte) (int, error) {
	if err := requireRegisterSpace(p.regs); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	for p.regs.Read32(pl011FR)&pl011FlagRxEmpty != 0 {
	}
	n := 0
	for n < len(buf) && p.regs.Read32(pl011FR)&pl011FlagRxEmpty == 0 {
		buf[n] = byte(p.regs.Read32(pl011DR))
		n++
	}
	return n, nil
}

// ClearInterrupts writes ICR to acknowledge all pending UART interrupts.
func (p *PL011) ClearInterrupts() {
	p.regs.Write32(pl011ICR, 0x7ff)
}
