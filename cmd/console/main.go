// Command console is a host-side harness for internal/serial: it puts the
// host terminal into raw mode and bridges typed keystrokes through a real
// PL011 or UART16550 driver instance, echoing whatever the driver writes
// back to the terminal. There is no emulated guest behind the UART, only a
// loopback FIFO standing in for "something on the wire" — enough to drive
// the driver's Read/Write paths the way a real console would, the same
// role the teacher's own terminal-bridging cmd/ tools play against a guest
// VM's console device.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Acteus/vibos/internal/serial"
)

var archFlag = flag.String("arch", "amd64", "UART to bridge: amd64 (16550) or arm64 (PL011)")

var savedTermState *term.State

func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal state: %w", err)
	}
	savedTermState = state
	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}

// byteFIFO is a small mutex-guarded byte queue standing in for a UART's
// hardware FIFO. empty() self-throttles with a short sleep so a driver's
// busy-wait loop (internal/serial's putByte/Read spin on the status
// register) does not peg a host CPU core while waiting on terminal input.
type byteFIFO struct {
	mu   sync.Mutex
	data []byte
}

func (f *byteFIFO) push(b byte) {
	f.mu.Lock()
	f.data = append(f.data, b)
	f.mu.Unlock()
}

func (f *byteFIFO) pop() (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return 0, false
	}
	b := f.data[0]
	f.data = f.data[1:]
	return b, true
}

func (f *byteFIFO) empty() bool {
	f.mu.Lock()
	n := len(f.data)
	f.mu.Unlock()
	if n == 0 {
		time.Sleep(time.Millisecond)
		return true
	}
	return false
}

// loopbackRegs implements serial.RegisterSpace over two byteFIFOs: the
// driver's Read pops from rx and its Write pushes into tx. main passes the
// same FIFO as both, so every byte the driver writes comes back on its
// next Read.
type loopbackRegs struct {
	rx, tx *byteFIFO
}

const (
	pl011DR = 0x00
	pl011FR = 0x18

	pl011FlagTxFull  = 1 << 5
	pl011FlagRxEmpty = 1 << 4
)

func (r *loopbackRegs) Read32(offset uint32) uint32 {
	switch offset {
	case pl011FR:
		var flags uint32
		if r.rx.empty() {
			flags |= pl011FlagRxEmpty
		}
		return flags
	case pl011DR:
		b, _ := r.rx.pop()
		return uint32(b)
	default:
		return 0
	}
}

func (r *loopbackRegs) Write32(offset uint32, value uint32) {
	if offset == pl011DR {
		r.tx.push(byte(value))
	}
}

// loopbackPorts implements serial.PortSpace over the same two-FIFO shape,
// in 16550 register terms.
type loopbackPorts struct {
	rx, tx *byteFIFO
}

const (
	uart16550RegData      = 0
	uart16550RegLSR       = 5
	uart16550LSRDataReady = 1 << 0
	uart16550LSRTHRE      = 1 << 5
)

func (p *loopbackPorts) In8(port uint16) byte {
	switch port & 0xff {
	case uart16550RegLSR:
		var status byte = uart16550LSRTHRE
		if !p.rx.empty() {
			status |= uart16550LSRDataReady
		}
		return status
	case uart16550RegData:
		b, _ := p.rx.pop()
		return b
	default:
		return 0
	}
}

func (p *loopbackPorts) Out8(port uint16, value byte) {
	if port&0xff == uart16550RegData {
		p.tx.push(value)
	}
}

// uart is the minimal contract both drivers satisfy, per spec §4.11's
// character-sink/input-source contract.
type uart interface {
	Init() error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
}

func newUART(arch string, rx, tx *byteFIFO) (uart, error) {
	switch arch {
	case "amd64":
		return serial.NewUART16550(&loopbackPorts{rx: rx, tx: tx}, 0), nil
	case "arm64":
		return serial.NewPL011(&loopbackRegs{rx: rx, tx: tx}), nil
	default:
		return nil, fmt.Errorf("unknown -arch %q (want amd64 or arm64)", arch)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	loop := &byteFIFO{}
	u, err := newUART(*archFlag, loop, loop)
	if err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}
	if err := u.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}

	if err := setupTerminal(); err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}
	defer restoreTerminal()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		restoreTerminal()
		os.Exit(0)
	}()

	fmt.Fprintf(os.Stderr, "console: bridging %s UART, ctrl-c to quit\r\n", *archFlag)

	bridge(u)
}

// bridge feeds stdin, one byte at a time, through the driver's Write path
// and copies whatever the driver's Read returns to stdout, so every
// keystroke round-trips through the real driver code before it is echoed
// back.
func bridge(u uart) {
	stdinDone := make(chan struct{})

	go func() {
		defer close(stdinDone)
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if n == 0 || err != nil {
				return
			}
			if buf[0] == 0x03 { // ctrl-c
				restoreTerminal()
				os.Exit(0)
			}
			if _, err := u.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	readBuf := make([]byte, 64)
	for {
		select {
		case <-stdinDone:
			return
		default:
		}
		n, err := u.Read(readBuf)
		if err != nil {
			return
		}
		if n > 0 {
			os.Stdout.Write(readBuf[:n])
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: console [-arch amd64|arm64]\n")
	flag.PrintDefaults()
}
