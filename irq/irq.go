// Package irq implements the architecture-neutral interrupt dispatch table
// shared by the GICv2 (ARM) and dual-8259/IOAPIC-style (x86) controllers:
// register/unregister a handler per IRQ line, and a Dispatch loop that acks,
// runs the handler (or warns), and signals end-of-interrupt.
//
// Grounded on src/arch/arm64/interrupts/gic.c's handler-table shape
// (irq_handlers[GIC_MAX_IRQS], acknowledge/EOI pair) generalized behind a
// Controller interface so the same Table serves both the GIC and PIC
// backends in arch/.
package irq

import (
	"fmt"

	"zixiao/stats"
)

// Handler services one IRQ. It receives the IRQ number so one Handler value
// can be shared across several lines.
type Handler func(irqNum uint32)

// Controller is the architecture-specific interrupt controller backend: a
// GICv2 distributor+CPU-interface pair on ARM, a dual-8259 PIC (or IOAPIC)
// pair on x86.
type Controller interface {
	// Acknowledge returns the number of the interrupt currently being
	// serviced.
	Acknowledge() uint32
	// EndOfInterrupt signals completion of servicing irqNum.
	EndOfInterrupt(irqNum uint32)
	// Enable/Disable unmask or mask a single IRQ line at the controller.
	Enable(irqNum uint32)
	Disable(irqNum uint32)
	// IsSpurious reports whether the value Acknowledge just returned is a
	// spurious-interrupt sentinel rather than a real IRQ line: the GICv2's
	// reserved INTID range (>= 1020) or the dual-8259's cascade spurious
	// protocol (IRQ7/IRQ15 acked but not actually in-service). A spurious
	// acknowledge must never reach a handler lookup or an EndOfInterrupt
	// call the hardware isn't expecting.
	IsSpurious(irqNum uint32) bool
}

// Logger receives a dispatch-time warning for an IRQ with no registered
// handler. console.Printf satisfies this signature.
type Logger func(format string, args ...any)

// Table is a fixed-size IRQ number -> handler mapping. Size is the
// architecture's upper bound on IRQ numbers (16 for PIC, up to 1024 for
// GIC).
type Table struct {
	handlers []Handler
	ctrl     Controller
	log      Logger

	// Dispatches counts every Dispatch call, handled or not. A no-op
	// unless stats.Enabled is flipped on.
	Dispatches stats.Counter_t
}

// NewTable allocates a table for IRQ numbers [0, size) backed by ctrl. log
// may be nil, in which case unhandled-IRQ warnings are silently dropped
// (useful in tests that don't care about console output).
func NewTable(size int, ctrl Controller, log Logger) *Table {
	return &Table{handlers: make([]Handler, size), ctrl: ctrl, log: log}
}

// Size returns the number of IRQ lines this table manages.
func (t *Table) Size() int { return len(t.handlers) }

// Register installs h for irqNum, replacing any previous handler
// (last-write-wins). It panics on an out-of-range irqNum: that is a kernel
// programming error, not a runtime condition to recover from.
func (t *Table) Register(irqNum uint32, h Handler) {
	t.mustInRange(irqNum)
	t.handlers[irqNum] = h
	t.ctrl.Enable(irqNum)
}

// Unregister sets irqNum's handler back to none and masks the line at the
// controller.
func (t *Table) Unregister(irqNum uint32) {
	t.mustInRange(irqNum)
	t.handlers[irqNum] = nil
	t.ctrl.Disable(irqNum)
}

func (t *Table) mustInRange(irqNum uint32) {
	if int(irqNum) >= len(t.handlers) {
		panic(fmt.Sprintf("irq: IRQ number %d out of range [0, %d)", irqNum, len(t.handlers)))
	}
}

// Dispatch services the interrupt currently pending at the controller: it
// acknowledges, runs the registered handler (or logs a warning if there is
// none), and always ends with EndOfInterrupt — an unhandled IRQ still
// gets acked. A spurious acknowledge is the one exception: it returns
// immediately, before any warning and before EndOfInterrupt, since the
// hardware never actually raised a serviceable interrupt.
func (t *Table) Dispatch() {
	t.Dispatches.Inc()
	irqNum := t.ctrl.Acknowledge()
	if t.ctrl.IsSpurious(irqNum) {
		return
	}
	defer t.ctrl.EndOfInterrupt(irqNum)

	if int(irqNum) >= len(t.handlers) || t.handlers[irqNum] == nil {
		if t.log != nil {
			t.log("irq: no handler registered for IRQ %d\n", irqNum)
		}
		return
	}
	t.handlers[irqNum](irqNum)
}
