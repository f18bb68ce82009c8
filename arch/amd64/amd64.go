// Package amd64 is Zixiao's x86_64 architecture back-end: the dual-8259
// PIC interrupt controller, the PIT timer's hardware programming, the
// context-switch primitives the scheduler calls into, CR0-CR4 register
// access for the panic register dump, and paging (CR3/PML4) control.
//
// Grounded on src/arch/x86_64/interrupts/idt.c (pic_remap's vector-base
// remap to 0x20/0x28 and cascade-only unmask), src/arch/x86_64/panic.c
// (arch_panic_dump_regs/arch_halt), and src/arch/x86_64/mm/mmu.c (the
// PML4 4-level layout and CR3 load). All inline assembly lives in
// asm_amd64.s; this file only exposes typed wrappers around it.
package amd64

import (
	"reflect"

	"zixiao/console"
	"zixiao/kpanic"
	"zixiao/mem"
	"zixiao/sched"
	"zixiao/vm"
)

// Declared in asm_amd64.s.
func outb(port uint16, val uint8)
func inb(port uint16) uint8
func cli()
func sti()
func hlt()
func pauseHint()
func readCR(which int) uint64
func writeCR3(val uint64)
func switchTo(prev, next *regsAsm)
func firstSwitch(next *regsAsm)

// regsAsm is the exact layout switchTo/firstSwitch read and write:
// RBX, RBP, R12-R15, RSP, and the return RIP, in that order. It is
// distinct from sched.Regs because the asm indexes it by fixed byte
// offset, not by Go field reflection.
type regsAsm struct {
	bx, bp, r12, r13, r14, r15, sp, ip uint64
}

// PIC ports, per idt.c.
const (
	pic1Command = 0x20
	pic1Data    = 0x21
	pic2Command = 0xA0
	pic2Data    = 0xA1

	vectorBase0 = 0x20 // IRQ 0-7  -> vectors 0x20-0x27
	vectorBase1 = 0x28 // IRQ 8-15 -> vectors 0x28-0x2F

	// PITIRQ and KeyboardIRQ are the fixed IRQ line assignments for the
	// x86 platform.
	PITIRQ      = 0
	KeyboardIRQ = 1

	readISR = 0x0B // OCW3: next read of the command port returns the ISR

	pitCommand  = 0x43
	pitChannel0 = 0x40
	// pitBaseFreq is the 8253/8254's fixed input oscillator frequency.
	pitBaseFreq = 1193182
)

// PIC is the dual-8259 interrupt controller, implementing irq.Controller.
type PIC struct {
	masks   [2]uint8
	pending uint32
}

// NewPIC remaps both cascaded controllers to vector bases 0x20/0x28 and
// masks every line except the cascade (IRQ2), matching pic_remap exactly.
func NewPIC() *PIC {
	p := &PIC{masks: [2]uint8{0xFF &^ (1 << 2), 0xFF}}

	outb(pic1Command, 0x11)
	outb(pic2Command, 0x11)
	outb(pic1Data, vectorBase0)
	outb(pic2Data, vectorBase1)
	outb(pic1Data, 0x04) // tell master: slave on IRQ2
	outb(pic2Data, 0x02) // tell slave its cascade identity
	outb(pic1Data, 0x01)
	outb(pic2Data, 0x01)

	outb(pic1Data, p.masks[0])
	outb(pic2Data, p.masks[1])
	return p
}

func (p *PIC) Enable(irqNum uint32) {
	if irqNum >= 16 {
		return
	}
	line, port := splitIRQ(irqNum)
	p.masks[line] &^= 1 << port
	p.program(line)
}

func (p *PIC) Disable(irqNum uint32) {
	if irqNum >= 16 {
		return
	}
	line, port := splitIRQ(irqNum)
	p.masks[line] |= 1 << port
	p.program(line)
}

func splitIRQ(irqNum uint32) (line, bit uint32) {
	if irqNum >= 8 {
		return 1, irqNum - 8
	}
	return 0, irqNum
}

func (p *PIC) program(line uint32) {
	if line == 0 {
		outb(pic1Data, p.masks[0])
	} else {
		outb(pic2Data, p.masks[1])
	}
}

// Acknowledge returns the in-service IRQ. Unlike the GIC, the PIC has no
// IAR-style acknowledge register distinct from the IDT vector the CPU
// already dispatched on: the trap stub for vectors 0x20-0x2F subtracts
// the vector base and calls SetPending before invoking irq.Table.Dispatch,
// which is what keeps irq.Controller's interface uniform across both
// architectures despite the hardware difference.
func (p *PIC) Acknowledge() uint32 { return p.pending }

// SetPending records the IRQ number the trap stub decoded from the
// interrupt vector, for the next Acknowledge call.
func (p *PIC) SetPending(irqNum uint32) { p.pending = irqNum }

// EndOfInterrupt issues the PIC EOI command, cascading to the slave
// controller when irqNum is on it, per idt.c's irq_handler.
func (p *PIC) EndOfInterrupt(irqNum uint32) {
	if irqNum >= 8 {
		outb(pic2Command, 0x20)
	}
	outb(pic1Command, 0x20)
}

// IsSpurious detects the dual-8259's cascade spurious-interrupt protocol:
// IRQ7 and IRQ15 can be reported by the CPU with nothing actually
// in-service, e.g. a noise glitch on the interrupt line. The controller
// must be asked directly, via OCW3, which bits are really in-service; an
// acknowledged IRQ7/IRQ15 whose ISR bit is clear never happened. A spurious
// IRQ15 still requires an EOI to the master controller, since the cascade
// line genuinely fired even though the slave's line did not; a spurious
// IRQ7 requires no EOI at all.
func (p *PIC) IsSpurious(irqNum uint32) bool {
	switch irqNum {
	case 7:
		return !isrBit(pic1Command, 7)
	case 15:
		if isrBit(pic2Command, 7) {
			return false
		}
		outb(pic1Command, 0x20) // EOI to the master only
		return true
	default:
		return false
	}
}

// isrBit reads the in-service register via OCW3 and reports whether bit is
// set.
func isrBit(commandPort uint16, bit uint8) bool {
	outb(commandPort, readISR)
	isr := inb(commandPort)
	return isr&(1<<bit) != 0
}

// ProgramPIT configures PIT channel 0 as a mode-3 square-wave generator so
// it auto-reloads and raises IRQ0 at hz, matching timer_init's
// command-byte-then-divisor write order: mode/access byte first, then the
// divisor's low byte, then its high byte.
func ProgramPIT(hz uint32) {
	divisor := uint16(pitBaseFreq / hz)
	outb(pitCommand, 0x36) // channel 0, lobyte/hibyte access, mode 3, binary
	outb(pitChannel0, uint8(divisor))
	outb(pitChannel0, uint8(divisor>>8))
}

// Halt disables interrupts and parks the CPU in HLT forever, per
// arch_halt in panic.c.
func Halt() {
	cli()
	for {
		hlt()
	}
}

// Pause executes the PAUSE spin-wait hint, used by timer.Clock.SleepMS's
// busy loop (timer_sleep_ms's "pause" inline asm in timer.c).
func Pause() { pauseHint() }

// WaitForInterrupt executes HLT with interrupts left enabled, parking the
// CPU until the next IRQ wakes it. This is the idle task's body (priority
// 0, PID 0, an infinite wait-for-interrupt loop) — distinct from Halt,
// which masks interrupts first and never wakes.
func WaitForInterrupt() { hlt() }

// IRQMask and IRQUnmask are the CPU-level (not controller-level) interrupt
// gate: cli/sti. Critical sections touching shared kernel state must run
// with interrupts masked.
func IRQMask()   { cli() }
func IRQUnmask() { sti() }

// DumpRegs renders the x86_64 register block for a panic: general
// purpose registers, RFLAGS, and CR0-CR4, matching arch_panic_dump_regs
// in panic.c line for line.
func DumpRegs(c *console.Console, r *kpanic.Regs) {
	if r == nil {
		c.Write("No register information available.\n")
		return
	}
	c.Printf("Instruction Pointer (RIP): 0x%016llx\n", r.PC)
	c.Printf("Stack Pointer (RSP):       0x%016llx\n", r.SP)
	c.Printf("RFLAGS:                   0x%016llx\n\n", r.Flags)

	names := [16]string{"RAX", "RBX", "RCX", "RDX", "RSI", "RDI", "RBP", "RSP",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}
	c.Write("General Purpose Registers:\n")
	for i, name := range names {
		c.Printf("  %s: 0x%016llx", name, r.GP[i])
		if (i+1)%2 == 0 {
			c.PutChar('\n')
		} else {
			c.Write("  ")
		}
	}
	c.PutChar('\n')

	cr0 := readCR(0)
	cr2 := readCR(2)
	cr3 := readCR(3)
	cr4 := readCR(4)
	c.Write("Control Registers:\n")
	c.Printf("  CR0: 0x%016llx (PE=%d, PG=%d)\n", cr0, cr0&1, (cr0>>31)&1)
	c.Printf("  CR2: 0x%016llx (Page Fault Address)\n", cr2)
	c.Printf("  CR3: 0x%016llx (Page Directory Base)\n", cr3)
	c.Printf("  CR4: 0x%016llx\n", cr4)
}

// ContextSwitch implements sched.ContextSwitcher for x86_64. Every task
// gets its own regsAsm slot allocated alongside its PCB; SetupContext
// primes it so the first switch resumes at entry with a clean stack
// frame.
//
// A task that has never run yet has no real saved register state: its
// first resumption has to land somewhere that can call its Go closure
// entry point, and a raw asm JMP cannot call a Go func value directly
// (the callee-saved registers alone don't carry a closure's captured
// context). trampoline is the fixed landing pad every unstarted task's
// saved RIP points at; startingEntry is a one-shot handoff slot set
// immediately before the asm switch that lands there. Because this is a
// single-core kernel and the handoff happens with interrupts masked,
// nothing else can observe or disturb it between the write and the jump.
type ContextSwitch struct {
	regs    map[*sched.Task]*regsAsm
	pending map[*sched.Task]func()
}

// NewContextSwitch constructs an x86_64 scheduler back-end.
func NewContextSwitch() *ContextSwitch {
	return &ContextSwitch{
		regs:    make(map[*sched.Task]*regsAsm),
		pending: make(map[*sched.Task]func()),
	}
}

func (cs *ContextSwitch) slot(t *sched.Task) *regsAsm {
	r, ok := cs.regs[t]
	if !ok {
		r = &regsAsm{}
		cs.regs[t] = r
	}
	return r
}

// startingEntry is consumed exactly once, by trampoline, right after a
// FirstSwitch/SwitchTo into a task that has never run before.
var startingEntry func()

// trampoline is a plain, non-closing-over-anything top-level function so
// its code address is stable and callable via a bare JMP under the
// x86_64 ABI. It calls the pending task's entry point and, if that ever
// returns without the task calling sched.TaskExit itself, halts rather
// than falling off into undefined memory.
func trampoline() {
	entry := startingEntry
	startingEntry = nil
	entry()
	for {
		hlt()
	}
}

var trampolinePC = reflect.ValueOf(trampoline).Pointer()

// SetupContext writes task's saved RSP to the top of its fresh kernel
// stack (16-byte aligned per the SysV ABI) and its saved RIP to
// trampoline, matching task_create's "first context switch lands at
// entry" contract. The real entry closure is held in pending until the
// scheduler actually switches into this task.
func (cs *ContextSwitch) SetupContext(task *sched.Task, entry func()) {
	r := cs.slot(task)
	top := uintptr(task.KernelStack) + task.KernelStackSize
	top &^= 0xF
	r.sp = uint64(top)
	r.ip = uint64(trampolinePC)
	cs.pending[task] = entry
}

func (cs *ContextSwitch) arm(next *sched.Task) {
	if entry, ok := cs.pending[next]; ok {
		startingEntry = entry
		delete(cs.pending, next) // consumed: next resumes via its own saved RIP hereafter
	}
}

func (cs *ContextSwitch) SwitchTo(prev, next *sched.Task) {
	cs.arm(next)
	switchTo(cs.slot(prev), cs.slot(next))
}

func (cs *ContextSwitch) FirstSwitch(next *sched.Task) {
	cs.arm(next)
	firstSwitch(cs.slot(next))
}

// SwitchTable loads CR3 with root's physical address and lets the CPU's
// normal TLB-on-CR3-write behavior invalidate stale entries, matching
// x86_64_switch_page_table.
func SwitchTable(root *vm.Root) {
	writeCR3(uint64(root.Root()))
}

// InvalidatePage is a no-op on x86_64: it issues no INVLPG, and nothing in
// the kernel calls it.
func InvalidatePage(va mem.VirtAddr) {
	// A real INVLPG needs the operand's memory address, which requires a
	// small asm stub parameterized on va; this package has none.
	// Identity-mapping bring-up never removes a mapping, and the CR3 load
	// in SwitchTable flushes the TLB wholesale.
}
