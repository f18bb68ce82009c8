// x86_64 wiring: the physical memory map and architecture capability set
// assumed for the x86 virtual platform (kernel at 0x100000, VGA text
// buffer at 0xB8000, PIT on IRQ 0, dual-8259 PIC). Selected by the Go
// toolchain automatically for GOARCH=amd64 — no runtime dispatch,
// matching arm64's own build-time selection.
package kernel

import (
	"zixiao/arch/amd64"
	"zixiao/console"
	"zixiao/irq"
	"zixiao/kpanic"
	"zixiao/sched"
	"zixiao/vm"
)

// Assumed total RAM for the x86 virtual platform: bring-up only commits
// to the kernel at 0x100000 with 8 MiB mapped, sized generously past that
// mapping to give the PMM room to hand out pages the rest of the kernel
// (task stacks, on-demand allocations) will need.
const amd64TotalMemory = 64 * 1024 * 1024

var defaultBootcfg = bootcfg{
	memStart:         0x100000,
	memEnd:           0x100000 + amd64TotalMemory,
	kernelRegionSize: 8 * 1024 * 1024,
	devices: []deviceRegion{
		{name: "vga", base: 0xB8000, size: 0x8000},
	},
	timerIRQ:      amd64.PITIRQ,
	irqTableSize:  16,
	heapSize:      1 * 1024 * 1024,
	idleStackSize: 16 * 1024,
}

func newController() irq.Controller             { return amd64.NewPIC() }
func newContextSwitcher() sched.ContextSwitcher { return amd64.NewContextSwitch() }
func enablePaging(root *vm.Root)                { amd64.SwitchTable(root) }
func dumpRegs(c *console.Console, r *kpanic.Regs) { amd64.DumpRegs(c, r) }
func panicArch() kpanic.Arch                    { return kpanic.ArchAMD64 }
func archHalt()                                 { amd64.Halt() }
func archPause() func()                         { return amd64.Pause }
func archUnmask() func()                        { return amd64.IRQUnmask }

// programTimer configures the PIT to raise timerIRQ at hz. The PIT
// auto-reloads in mode 3, so there is no per-tick rearm on this
// architecture.
func programTimer(hz uint32) func() {
	amd64.ProgramPIT(hz)
	return nil
}
