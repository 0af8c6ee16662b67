package intc

import "testing"

type fakeController struct {
	enabled  map[uint32]bool
	pending  []uint32
	eoiCount map[uint32]int
	inited   bool
}

func newFakeController() *fakeController {
	return &fakeController{
		enabled:  map[uint32]bool{},
		eoiCount: map[uint32]int{},
	}
}

func (f *fakeController) Init()                      { f.inited = true }
func (f *fakeController) EnableIRQ(irq uint32)        { f.enabled[irq] = true }
func (f *fakeController) DisableIRQ(irq uint32)       { f.enabled[irq] = false }
func (f *fakeController) Spurious() uint32            { return 1020 }
func (f *fakeController) EndOfInterrupt(irq uint32)   { f.eoiCount[irq]++ }

func (f *fakeController) Acknowledge() uint32 {
	if len(f.pending) == 0 {
		return f.Spurious()
	}
	irq := f.pending[0]
	f.pending = f.pending[1:]
	return irq
}

func resetGlobals() {
	handlers = map[uint32]Handler{}
	ctrl = nil
}

func TestSetControllerInitializes(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)
	if !fc.inited {
		t.Fatal("SetController must call Init")
	}
}

func TestRegisterEnablesAndDispatches(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)

	var got uint32
	Register(5, func(irq uint32) { got = irq })
	if !fc.enabled[5] {
		t.Fatal("Register must enable the IRQ line")
	}

	fc.pending = []uint32{5}
	Dispatch()

	if got != 5 {
		t.Fatalf("handler saw irq %d, want 5", got)
	}
	if fc.eoiCount[5] != 1 {
		t.Fatalf("EndOfInterrupt called %d times, want 1", fc.eoiCount[5])
	}
}

func TestDispatchUnregisteredIRQStillEOIs(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)

	fc.pending = []uint32{9}
	Dispatch()

	if fc.eoiCount[9] != 1 {
		t.Fatal("an unhandled IRQ must still be EOI'd so the line doesn't wedge")
	}
}

func TestDispatchSpuriousSkipsEOI(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)

	Dispatch() // no pending IRQs -> Acknowledge returns Spurious()

	if len(fc.eoiCount) != 0 {
		t.Fatal("a spurious interrupt must not be EOI'd")
	}
}

func TestDispatchReservedRangeSkipsEOI(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)

	for _, irq := range []uint32{1020, 1021, 1022, 1023} {
		fc.pending = []uint32{irq}
		Dispatch()
		if fc.eoiCount[irq] != 0 {
			t.Fatalf("reserved IRQ %d was EOI'd, want dropped silently", irq)
		}
	}
}

func TestUnregisterDisablesLine(t *testing.T) {
	resetGlobals()
	fc := newFakeController()
	SetController(fc)

	Register(3, func(uint32) {})
	Unregister(3)

	if fc.enabled[3] {
		t.Fatal("Unregister must disable the IRQ line")
	}
}
