// AArch64 wiring: the physical memory map and architecture capability set
// assumed for the ARM virtual platform (RAM at 0x40000000, UART MMIO at
// 0x09000000, GICv2 at 0x08000000-0x08020000, generic timer on IRQ 30).
// Selected by the Go toolchain automatically for GOARCH=arm64 — no
// runtime dispatch, matching amd64's own build-time selection.
package kernel

import (
	"zixiao/arch/arm64"
	"zixiao/console"
	"zixiao/irq"
	"zixiao/kpanic"
	"zixiao/sched"
	"zixiao/vm"
)

// Assumed total RAM for the ARM virtual platform: bring-up only commits
// to RAM beginning at 0x40000000 with 8 MiB mapped, sized generously past
// that for the same reason as amd64TotalMemory.
const arm64TotalMemory = 64 * 1024 * 1024

var defaultBootcfg = bootcfg{
	memStart:         0x40000000,
	memEnd:           0x40000000 + arm64TotalMemory,
	kernelRegionSize: 8 * 1024 * 1024,
	devices: []deviceRegion{
		{name: "uart", base: 0x09000000, size: 0x1000},
		{name: "gic", base: 0x08000000, size: 0x20000},
	},
	timerIRQ:      arm64.TimerIRQ,
	irqTableSize:  1024,
	heapSize:      1 * 1024 * 1024,
	idleStackSize: 16 * 1024,
}

func newController() irq.Controller             { return arm64.NewGIC() }
func newContextSwitcher() sched.ContextSwitcher { return arm64.NewContextSwitch() }
func enablePaging(root *vm.Root)                { arm64.EnablePaging(root) }
func dumpRegs(c *console.Console, r *kpanic.Regs) { arm64.DumpRegs(c, r) }
func panicArch() kpanic.Arch                    { return kpanic.ArchARM64 }
func archHalt()                                 { arm64.Halt() }
func archPause() func()                         { return arm64.Pause }
func archUnmask() func()                        { return arm64.IRQUnmask }

// programTimer reads CNTFRQ_EL0, arms the generic timer's first comparator
// deadline for hz interrupts per second, and returns the per-tick rearm
// closure the timer IRQ handler must call, since CNTP_CVAL_EL0 fires once
// and does not auto-reload the way the PIT does.
func programTimer(hz uint32) func() {
	t := arm64.NewTimer(uint64(hz))
	return t.Rearm
}
