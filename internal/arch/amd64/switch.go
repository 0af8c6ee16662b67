package amd64

import "github.com/Acteus/vibos/internal/arch"

//go:noescape
func contextSwitch(out, in *Context)

// Switcher implements arch.ContextSwitcher[Context] for amd64, backing
// internal/task's scheduler with the real register-level switch defined in
// switch_amd64.s.
type Switcher struct{}

var _ arch.ContextSwitcher[Context] = Switcher{}

// Switch saves the caller's full register state into out, loads in, and
// resumes at in's saved Rip via IRETQ (spec §4.1 context_switch).
func (Switcher) Switch(out, in *Context) {
	contextSwitch(out, in)
}

// Init delegates to Context.Init (spec §4.1 context_init).
func (Switcher) Init(ctx *Context, entry, stackTop, arg uintptr) {
	ctx.Init(entry, stackTop, arg)
}
