package timer

import "testing"

func TestIRQHandlerRunsTickBeforeSchedule(t *testing.T) {
	var order []string
	c := NewClock(Hooks{
		Tick:     func() { order = append(order, "tick") },
		Schedule: func() { order = append(order, "schedule") },
	}, nil)

	c.IRQHandler(0)

	if len(order) != 2 || order[0] != "tick" || order[1] != "schedule" {
		t.Fatalf("call order = %v, want [tick schedule]", order)
	}
	if c.Ticks() != 1 {
		t.Fatalf("Ticks() = %d, want 1", c.Ticks())
	}
}

func TestUptimeMSTracksTicks(t *testing.T) {
	c := NewClock(Hooks{}, nil)
	for i := 0; i < TickHz; i++ {
		c.IRQHandler(0)
	}
	if got, want := c.UptimeMS(), uint64(1000); got != want {
		t.Fatalf("UptimeMS() = %d, want %d after %d ticks", got, want, TickHz)
	}
}

func TestSleepMSAdvancesWithTicksFromAnotherGoroutineStyleLoop(t *testing.T) {
	var c *Clock
	// Simulate the timer IRQ firing concurrently with SleepMS by ticking
	// from the pause hint. Ticks that landed before the call do not count:
	// after 50 ticks up front, SleepMS(500) waits for 50 further ticks.
	c = NewClock(Hooks{}, func() { c.IRQHandler(0) })
	for i := 0; i < TickHz/2; i++ {
		c.IRQHandler(0)
	}
	c.SleepMS(500)
	if got, want := c.Ticks(), uint64(TickHz); got != want {
		t.Fatalf("Ticks() = %d after SleepMS(500), want %d", got, want)
	}
}

func TestSleepMSCallsPauseHintUntilTicksCatchUp(t *testing.T) {
	var c *Clock
	var calls int
	ticked := false
	pause := func() {
		calls++
		if !ticked {
			ticked = true
			c.IRQHandler(0) // let one tick land partway through the spin
		}
	}
	c = NewClock(Hooks{}, pause)
	c.SleepMS(10) // 1 tick at 100 Hz

	if calls == 0 {
		t.Fatal("SleepMS never invoked the pause hint")
	}
	if c.Ticks() == 0 {
		t.Fatal("SleepMS returned without the clock having advanced")
	}
}
