package irq

import "testing"

type fakeController struct {
	pending   uint32
	spurious  uint32 // 0 means no IRQ number is treated as spurious
	enabled   map[uint32]bool
	eoiCount  int
	lastEOI   uint32
}

func newFakeController() *fakeController {
	return &fakeController{enabled: map[uint32]bool{}}
}

func (f *fakeController) Acknowledge() uint32 { return f.pending }
func (f *fakeController) EndOfInterrupt(irqNum uint32) {
	f.eoiCount++
	f.lastEOI = irqNum
}
func (f *fakeController) Enable(irqNum uint32)  { f.enabled[irqNum] = true }
func (f *fakeController) Disable(irqNum uint32) { f.enabled[irqNum] = false }
func (f *fakeController) IsSpurious(irqNum uint32) bool {
	return f.spurious != 0 && irqNum == f.spurious
}

// Register, dispatch, unregister, dispatch.
func TestDispatchRunsRegisteredHandler(t *testing.T) {
	ctrl := newFakeController()
	table := NewTable(16, ctrl, nil)

	var got uint32 = 999
	table.Register(5, func(irqNum uint32) { got = irqNum })
	if !ctrl.enabled[5] {
		t.Fatal("Register did not enable the IRQ line at the controller")
	}

	ctrl.pending = 5
	table.Dispatch()

	if got != 5 {
		t.Fatalf("handler received irqNum=%d, want 5", got)
	}
	if ctrl.eoiCount != 1 || ctrl.lastEOI != 5 {
		t.Fatalf("EndOfInterrupt called %d times with last=%d, want 1/5", ctrl.eoiCount, ctrl.lastEOI)
	}
}

func TestDispatchWithNoHandlerStillSendsEOI(t *testing.T) {
	ctrl := newFakeController()
	var warned bool
	log := func(format string, args ...any) { warned = true }
	table := NewTable(16, ctrl, log)

	ctrl.pending = 7
	table.Dispatch()

	if ctrl.eoiCount != 1 || ctrl.lastEOI != 7 {
		t.Fatalf("EndOfInterrupt not sent for unhandled IRQ 7: count=%d last=%d", ctrl.eoiCount, ctrl.lastEOI)
	}
	if !warned {
		t.Fatal("dispatch of an unhandled IRQ did not log a warning")
	}
}

func TestRegisterIsLastWriteWins(t *testing.T) {
	ctrl := newFakeController()
	table := NewTable(16, ctrl, nil)

	table.Register(3, func(uint32) { t.Fatal("stale handler invoked") })
	var called bool
	table.Register(3, func(uint32) { called = true })

	ctrl.pending = 3
	table.Dispatch()
	if !called {
		t.Fatal("dispatch invoked the replaced handler, not the latest one")
	}
}

func TestUnregisterClearsHandlerAndDisablesLine(t *testing.T) {
	ctrl := newFakeController()
	table := NewTable(16, ctrl, nil)

	table.Register(2, func(uint32) {})
	table.Unregister(2)

	if ctrl.enabled[2] {
		t.Fatal("Unregister did not disable the IRQ line")
	}
	ctrl.pending = 2
	table.Dispatch() // must not panic, must just warn-and-EOI
	if ctrl.eoiCount != 1 {
		t.Fatal("dispatch after Unregister did not still send EOI")
	}
}

// A spurious acknowledge must short-circuit before any handler lookup,
// warning, or EndOfInterrupt.
func TestDispatchIgnoresSpuriousIRQ(t *testing.T) {
	ctrl := newFakeController()
	ctrl.spurious = 1023
	var warned bool
	log := func(format string, args ...any) { warned = true }
	table := NewTable(1024, ctrl, log)

	ctrl.pending = 1023
	table.Dispatch()

	if ctrl.eoiCount != 0 {
		t.Fatalf("EndOfInterrupt called %d times for a spurious IRQ, want 0", ctrl.eoiCount)
	}
	if warned {
		t.Fatal("dispatch of a spurious IRQ logged a warning")
	}
}

func TestRegisterOutOfRangePanics(t *testing.T) {
	ctrl := newFakeController()
	table := NewTable(16, ctrl, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("Register with an out-of-range IRQ number did not panic")
		}
	}()
	table.Register(16, func(uint32) {})
}
