// Package kerrno defines the kernel's fixed error-code taxonomy (spec §7).
//
// Every boundary function in this module returns one of these codes as a
// negative int32, or a *KernelError wrapping one with call-site context. A
// class-5 programming error (spec §7.5) never produces either of these: it
// panics through internal/klog instead.
package kerrno

import "fmt"

// Code is a negated errno value, matching the sign convention every
// subsystem below the VFS boundary returns to its caller.
type Code int32

// Fixed codes per spec §7's propagation policy.
const (
	EINVAL    Code = 1  // invalid argument
	ENOMEM    Code = 2  // resource exhaustion: no frame/cluster/heap/slot
	EIO       Code = 3  // underlying device returned an error
	EEXIST    Code = 4  // entry already exists
	ENOSPC    Code = 5  // no space left (no free cluster, full registry)
	ENOTDIR   Code = 6  // not a directory
	ENOENT    Code = 7  // no such entry
	EBADF     Code = 8  // bad file handle
	ENOTEMPTY Code = 9  // directory not empty
	EROFS     Code = 10 // read-only filesystem/device
	EBUSY     Code = 11 // resource is in use
	ENOSYS    Code = 12 // not implemented (e.g. page-table calls on a kernel booted without a VirtEncoder)
	ENOTSUP   Code = 13 // operation not supported by this backend
)

var names = map[Code]string{
	EINVAL:    "EINVAL",
	ENOMEM:    "ENOMEM",
	EIO:       "EIO",
	EEXIST:    "EEXIST",
	ENOSPC:    "ENOSPC",
	ENOTDIR:   "ENOTDIR",
	ENOENT:    "ENOENT",
	EBADF:     "EBADF",
	ENOTEMPTY: "ENOTEMPTY",
	EROFS:     "EROFS",
	EBUSY:     "EBUSY",
	ENOSYS:    "ENOSYS",
	ENOTSUP:   "ENOTSUP",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("kerrno(%d)", int32(c))
}

func (c Code) Error() string { return c.String() }

// Negate returns the spec's on-the-wire representation: a negative int32.
func (c Code) Negate() int32 { return -int32(c) }

// KernelError carries call-site context (operation, path) around a Code,
// modeled on the teacher's Op/Path/Err error shape.
type KernelError struct {
	Op   string
	Path string
	Code Code
	Err  error
}

func (e *KernelError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KernelError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, kerrno.ENOENT) work against a *KernelError.
func (e *KernelError) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	return false
}

// New wraps a code with operation context.
func New(op string, code Code) *KernelError {
	return &KernelError{Op: op, Code: code}
}

// Newf wraps a code with operation, path, and an underlying error.
func Newf(op, path string, code Code, err error) *KernelError {
	return &KernelError{Op: op, Path: path, Code: code, Err: err}
}
