// Package timer implements the architecture-neutral side of the system
// clock: a monotonically increasing tick counter advanced by the timer
// interrupt at 100 Hz (10 ms/tick), uptime queries, and a busy-wait sleep.
// Hardware programming (PIT/8254 on x86, the ARM generic timer's
// CNTP_CVAL_EL0/CNTP_CTL_EL0) lives in arch/; this package only owns the
// counter and the scheduler hooks fired on each tick.
//
// Grounded on src/arch/x86_64/interrupts/timer.c and
// src/arch/arm64/interrupts/timer.c, which share one
// tick-then-scheduler_tick-then-periodic-log shape despite driving
// different hardware.
package timer

// TickHz is the timer interrupt rate. 10 ms per tick.
const TickHz = 100

// PreemptTicks is how many ticks a task may run before the scheduler forces
// a reschedule: 10 ticks = 100 ms, the default time slice.
const PreemptTicks = 10

// Hooks are the scheduler callbacks the timer interrupt drives. Kept as
// injected closures rather than an import of package sched to avoid a
// timer<->sched import cycle (sched needs the tick count for vruntime
// bookkeeping).
type Hooks struct {
	// Tick runs on every timer interrupt, before Schedule. It updates the
	// running task's time slice/vruntime accounting.
	Tick func()
	// Schedule runs after Tick and decides whether to context-switch.
	Schedule func()
	// Rearm reprograms the hardware comparator for the next tick. Required
	// on ARM, whose generic timer fires once per CNTP_CVAL_EL0 write; nil
	// on x86, whose PIT auto-reloads in mode 3 and never needs it.
	Rearm func()
}

// Clock owns the tick counter and the pause-spin primitive used by SleepMS.
type Clock struct {
	ticks uint64
	hooks Hooks
	pause func() // architecture spin-wait hint, e.g. x86 PAUSE or ARM WFE
}

// NewClock constructs a Clock. pause may be nil, in which case SleepMS spins
// without a hint instruction (fine in tests, wasteful on real hardware).
func NewClock(hooks Hooks, pause func()) *Clock {
	return &Clock{hooks: hooks, pause: pause}
}

// IRQHandler is called by the arch backend's timer interrupt vector. It
// increments the tick counter, then always runs Tick before Schedule: the
// tick accounting must strictly precede any schedule() triggered by the
// same tick. Rearm runs last, after the tick has been fully accounted for.
func (c *Clock) IRQHandler(irqNum uint32) {
	c.ticks++
	if c.hooks.Tick != nil {
		c.hooks.Tick()
	}
	if c.hooks.Schedule != nil {
		c.hooks.Schedule()
	}
	if c.hooks.Rearm != nil {
		c.hooks.Rearm()
	}
}

// Ticks returns the number of timer interrupts serviced since boot.
func (c *Clock) Ticks() uint64 { return c.ticks }

// UptimeMS returns milliseconds of uptime derived from the tick count.
func (c *Clock) UptimeMS() uint64 { return c.ticks * (1000 / TickHz) }

// SleepMS busy-waits until at least ms milliseconds have elapsed, spinning
// on the architecture's pause/yield hint each iteration rather than a bare
// empty loop.
func (c *Clock) SleepMS(ms uint64) {
	target := c.ticks + (ms*TickHz)/1000
	for c.ticks < target {
		if c.pause != nil {
			c.pause()
		}
	}
}
