package arm64

import "github.com/Acteus/vibos/internal/arch"

//go:noescape
func contextSwitch(out, in *Context)

// Switcher implements arch.ContextSwitcher[Context] for arm64, backing
// internal/task's scheduler with the real register-level switch defined in
// switch_arm64.s.
type Switcher struct{}

var _ arch.ContextSwitcher[Context] = Switcher{}

// Switch saves the caller's full register state into out, loads in, and
// resumes at in's saved program counter (spec §4.1 context_switch).
func (Switcher) Switch(out, in *Context) {
	contextSwitch(out, in)
}

// Init delegates to Context.Init (spec §4.1 context_init).
func (Switcher) Init(ctx *Context, entry, stackTop, arg uintptr) {
	ctx.Init(entry, stackTop, arg)
}
