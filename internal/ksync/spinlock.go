// Package ksync implements the kernel's low-level synchronization primitives
// (spec §4.11): a spinlock with an IRQ-save/restore variant, and an atomic
// counter. On real hardware these compile to a load-linked/store-conditional
// loop (ARM) or cmpxchg (x86); here they are expressed against Go's
// sync/atomic, which gives the same acquire/release semantics the spec
// requires without hand-written assembly.
package ksync

import (
	"sync/atomic"

	"github.com/Acteus/vibos/internal/arch"
)

// SpinLock is a single 32-bit lock word. Zero value is unlocked.
type SpinLock struct {
	word atomic.Uint32
}

const (
	lockFree = 0
	lockHeld = 1
)

// Lock spins until the lock is acquired. Acquire semantics: everything after
// Lock returns happens-after the matching Unlock on every other hart.
func (l *SpinLock) Lock() {
	for !l.word.CompareAndSwap(lockFree, lockHeld) {
		// busy-wait; a real implementation would issue a pause/yield hint here.
	}
}

// TryLock attempts to acquire the lock without spinning, returning false if
// it is already held.
func (l *SpinLock) TryLock() bool {
	return l.word.CompareAndSwap(lockFree, lockHeld)
}

// Unlock releases the lock with release semantics: the lock word is
// observably zero to any hart that subsequently acquires it (spec §8).
func (l *SpinLock) Unlock() {
	l.word.Store(lockFree)
}

// IRQToken captures the processor's interrupt-enable state as it was before
// an IRQSave, so IRQRestore can put it back exactly.
type IRQToken struct {
	masker   arch.IRQMasker
	wasEnabled bool
}

// LockIRQSave disables interrupts (nesting-safe: the token captures whatever
// the enable state was before this call) and then acquires the lock.
func (l *SpinLock) LockIRQSave(m arch.IRQMasker) IRQToken {
	tok := IRQToken{masker: m, wasEnabled: m.IRQSave()}
	l.Lock()
	return tok
}

// UnlockIRQRestore releases the lock, then restores interrupts to whatever
// they were before the matching LockIRQSave.
func (l *SpinLock) UnlockIRQRestore(tok IRQToken) {
	l.Unlock()
	tok.masker.IRQRestore(tok.wasEnabled)
}

// IsLocked reports whether the lock is currently held. Intended for tests
// and assertions, never for deciding control flow (that would be a race).
func (l *SpinLock) IsLocked() bool {
	return l.word.Load() == lockHeld
}
