// Package klog implements printk-style kernel logging and the panic path
// (spec's printk+panic module). Messages are appended to a fixed-size ring
// buffer under a lock-free atomic offset exactly the way the teacher's
// debug package serializes concurrent writers, then mirrored synchronously
// to a registered sink (typically internal/serial), with ANSI severity
// coloring when SetColorize has turned it on.
package klog

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// Severity orders kernel log messages the way spec §4.10 names them.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
	Panic
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Panic:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// color maps severity to an ANSI SGR sequence; Debug/Info are left
// uncolored to keep normal boot output quiet.
func (s Severity) color() string {
	switch s {
	case Warn:
		return "33" // yellow
	case Error:
		return "31" // red
	case Panic:
		return "41;97" // white on red
	default:
		return ""
	}
}

// entry is one ring-buffer slot.
type entry struct {
	seq       uint64
	when      time.Time
	severity  Severity
	source    string
	message   string
}

const ringCapacity = 1024

var (
	ring   [ringCapacity]entry
	cursor atomic.Uint64
	sink   atomic.Pointer[io.Writer]
	colorize atomic.Bool
)

// SetSink registers the writer printk mirrors every message to. Typically
// called once during kernel init with the active internal/serial console.
func SetSink(w io.Writer) {
	sink.Store(&w)
}

// SetColorize enables or disables ANSI severity coloring, on for an
// interactive serial console and off for a plain log file.
func SetColorize(on bool) {
	colorize.Store(on)
}

func record(sev Severity, source, msg string) entry {
	e := entry{
		seq:      cursor.Add(1) - 1,
		when:     time.Now(),
		severity: sev,
		source:   source,
		message:  msg,
	}
	ring[e.seq%ringCapacity] = e
	flush(e)
	return e
}

func flush(e entry) {
	w := sink.Load()
	if w == nil {
		return
	}
	line := fmt.Sprintf("[%8s] %-5s %s: %s\n", e.when.Format("15:04:05.000"), e.severity, e.source, e.message)
	if colorize.Load() {
		if code := e.severity.color(); code != "" {
			line = ansi.SGR(code) + line + ansi.SGR("0")
		}
	}
	io.WriteString(*w, line)
}

// Printk logs a formatted message from an unnamed source, the kernel's
// top-level printk primitive.
func Printk(sev Severity, format string, args ...any) {
	record(sev, "kernel", fmt.Sprintf(format, args...))
}

// Logger is a source-scoped printk handle, mirroring the teacher's
// debug.WithSource/Debug split so each subsystem tags its own messages
// without repeating its name at every call site.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type logger struct {
	source string
}

// WithSource returns a Logger tagging every message with source (e.g.
// "vfs", "fat32", "gicv3").
func WithSource(source string) Logger {
	return &logger{source: source}
}

func (l *logger) Debugf(format string, args ...any) { record(Debug, l.source, fmt.Sprintf(format, args...)) }
func (l *logger) Infof(format string, args ...any)  { record(Info, l.source, fmt.Sprintf(format, args...)) }
func (l *logger) Warnf(format string, args ...any)  { record(Warn, l.source, fmt.Sprintf(format, args...)) }
func (l *logger) Errorf(format string, args ...any) { record(Error, l.source, fmt.Sprintf(format, args...)) }

// Recent returns the last n ring-buffer entries in chronological order, used
// by the panic path to dump recent kernel history and by tests to assert on
// logged output without scraping the sink.
func Recent(n int) []string {
	total := cursor.Load()
	if uint64(n) > total {
		n = int(total)
	}
	out := make([]string, 0, n)
	start := total - uint64(n)
	for i := start; i < total; i++ {
		e := ring[i%ringCapacity]
		out = append(out, fmt.Sprintf("%s %s: %s", e.severity, e.source, e.message))
	}
	return out
}
