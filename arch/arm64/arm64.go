// Package arm64 is Zixiao's AArch64 architecture back-end: the GICv2
// distributor/CPU-interface pair, ARM generic timer register access, the
// context-switch primitives the scheduler calls into, MMU register
// programming (MAIR_EL1/TCR_EL1/TTBR0_EL1/SCTLR_EL1), and the ESR_EL1-aware
// panic register dump.
//
// Grounded on src/arch/arm64/interrupts/gic.c (distributor/CPU-interface
// MMIO layout and IAR/EOIR acknowledge protocol), src/arch/arm64/panic.c
// (arch_panic_dump_regs's X0-X30 plus ESR_EL1/FAR_EL1 reporting), and
// src/arch/arm64/mm/mmu.c (the TTBR0_EL1/TCR_EL1/MAIR_EL1 programming
// sequence). All inline assembly lives in asm_arm64.s; this file only
// exposes typed wrappers around it.
package arm64

import (
	"reflect"
	"unsafe"

	"zixiao/console"
	"zixiao/kpanic"
	"zixiao/mem"
	"zixiao/sched"
	"zixiao/vm"
)

// Declared in asm_arm64.s.
func maskIRQ()
func unmaskIRQ()
func wfi()
func wfe()
func readSysReg(which int) uint64
func writeMAIR(val uint64)
func writeTCR(val uint64)
func writeTTBR0(val uint64)
func enableMMU()
func readCNTFRQ() uint64
func readCNTPCT() uint64
func writeCNTPCVal(val uint64)
func writeCNTPCtl(val uint64)
func switchTo(prev, next *regsAsm)
func firstSwitch(next *regsAsm)

const (
	regMAIR = iota
	regTCR
	regTTBR0
	regESR
	regFAR
	regELR
)

// regsAsm is the exact layout switchTo/firstSwitch read and write: X19-X28,
// the frame pointer (X29), the link register (X30), and SP, in that order.
// Distinct from sched.Regs because the asm indexes it by fixed byte offset.
type regsAsm struct {
	x19, x20, x21, x22, x23, x24, x25, x26, x27, x28, fp, lr, sp uint64
}

// GICv2 MMIO base addresses, per gic.c. These are fixed for Zixiao's
// reference ARM64 platform.
const (
	gicdBase = 0x08000000 // distributor
	gicdCtlr = gicdBase + 0x000
	gicdIsEnabler = gicdBase + 0x100 // enable-set registers, 32 IRQs/word
	gicdIcEnabler = gicdBase + 0x180 // enable-clear registers

	gicCpuBase = 0x08010000 // CPU interface
	gicCIar    = gicCpuBase + 0x00C // acknowledge
	gicCEoir   = gicCpuBase + 0x010 // end-of-interrupt
	gicCCtlr   = gicCpuBase + 0x000
	gicCPmr    = gicCpuBase + 0x004

	// TimerIRQ and UARTIRQ are the fixed IRQ line assignments for the
	// ARM64 platform.
	TimerIRQ = 30
	UARTIRQ  = 33

	// spuriousIRQ is the first of the GICv2's reserved spurious-interrupt
	// INTIDs (1020-1023). GICC_IAR returns one of these when no interrupt
	// is actually pending, e.g. a race where the interrupt was deasserted
	// between the CPU interface's signal and the read.
	spuriousIRQ = 1020
)

func mmioWrite32(addr uintptr, val uint32) {
	*(*uint32)(unsafe.Pointer(addr)) = val
}

func mmioRead32(addr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(addr))
}

// GIC is the GICv2 distributor+CPU-interface pair, implementing
// irq.Controller.
type GIC struct{}

// NewGIC enables the distributor and CPU interface and sets the priority
// mask to admit every priority, matching gic_init.
func NewGIC() *GIC {
	mmioWrite32(gicdCtlr, 1)
	mmioWrite32(gicCCtlr, 1)
	mmioWrite32(gicCPmr, 0xFF)
	return &GIC{}
}

// Acknowledge reads GICC_IAR, which both identifies the pending interrupt
// and transitions it to the active state.
func (g *GIC) Acknowledge() uint32 {
	return mmioRead32(gicCIar) & 0x3FF // low 10 bits are the INTID
}

// EndOfInterrupt writes irqNum back to GICC_EOIR, matching gic_eoi.
func (g *GIC) EndOfInterrupt(irqNum uint32) {
	mmioWrite32(gicCEoir, irqNum)
}

// IsSpurious reports an INTID in the reserved spurious range, matching
// gic_handle_irq's "if (irq >= 1020) return;" check done before any EOI.
func (g *GIC) IsSpurious(irqNum uint32) bool {
	return irqNum >= spuriousIRQ
}

// Enable sets irqNum's bit in GICD_ISENABLERn.
func (g *GIC) Enable(irqNum uint32) {
	word, bit := irqNum/32, irqNum%32
	mmioWrite32(gicdIsEnabler+uintptr(word)*4, 1<<bit)
}

// Disable sets irqNum's bit in GICD_ICENABLERn.
func (g *GIC) Disable(irqNum uint32) {
	word, bit := irqNum/32, irqNum%32
	mmioWrite32(gicdIcEnabler+uintptr(word)*4, 1<<bit)
}

// Halt masks interrupts and parks the core in WFE forever, per arch_halt
// in the ARM64 panic.c (WFE rather than x86's HLT, since WFE is the
// architectural "stop consuming power until woken" instruction).
func Halt() {
	maskIRQ()
	for {
		wfe()
	}
}

// Pause executes WFE as the spin-wait hint, used by timer.Clock.SleepMS's
// busy loop.
func Pause() { wfe() }

// WaitForInterrupt executes WFI with interrupts left enabled, parking the
// core until the next IRQ wakes it. This is the idle task's body
// (priority 0, PID 0, an infinite wait-for-interrupt loop) — distinct
// from Halt, which masks interrupts first and never wakes.
func WaitForInterrupt() { wfi() }

// IRQMask and IRQUnmask are the CPU-level (not controller-level) interrupt
// gate: DAIF bit manipulation. Critical sections touching shared kernel
// state must run with interrupts masked.
func IRQMask()   { maskIRQ() }
func IRQUnmask() { unmaskIRQ() }

// DumpRegs renders the ARM64 register block for a panic: X0-X30, SP, PC,
// and the fault syndrome registers, matching arch_panic_dump_regs's ARM64
// variant in panic.c.
func DumpRegs(c *console.Console, r *kpanic.Regs) {
	if r == nil {
		c.Write("No register information available.\n")
		return
	}
	c.Printf("Program Counter (PC): 0x%016llx\n", r.PC)
	c.Printf("Stack Pointer (SP):   0x%016llx\n", r.SP)
	c.Printf("Link Register (LR):   0x%016llx\n\n", r.LR)

	c.Write("General Purpose Registers:\n")
	for i := 0; i < 31; i++ {
		c.Printf("  X%d: 0x%016llx", i, r.GP[i])
		if (i+1)%2 == 0 {
			c.PutChar('\n')
		} else {
			c.Write("  ")
		}
	}
	c.PutChar('\n')

	esr := readSysReg(regESR)
	far := readSysReg(regFAR)
	ec := (esr >> 26) & 0x3F
	c.Write("Fault Syndrome:\n")
	c.Printf("  ESR_EL1: 0x%016llx (EC=0x%x)\n", esr, ec)
	c.Printf("  FAR_EL1: 0x%016llx (Fault Address)\n", far)
}

// ContextSwitch implements sched.ContextSwitcher for ARM64. The first-run
// problem is identical to x86_64's (see arch/amd64's doc comment): an
// unstarted task's saved LR points at trampoline, a plain top-level
// function, and startingEntry is the one-shot handoff slot set immediately
// before the asm switch that lands there.
type ContextSwitch struct {
	regs    map[*sched.Task]*regsAsm
	pending map[*sched.Task]func()
}

// NewContextSwitch constructs an ARM64 scheduler back-end.
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

var startingEntry func()

// trampoline is a plain, non-closing-over-anything top-level function so
// its code address is stable and reachable from a bare branch. It calls
// the pending task's entry point and, if that ever returns without the
// task calling sched.TaskExit itself, halts rather than falling off into
// undefined memory.
func trampoline() {
	entry := startingEntry
	startingEntry = nil
	entry()
	for {
		wfe()
	}
}

var trampolinePC = reflect.ValueOf(trampoline).Pointer()

// SetupContext writes task's saved SP to the top of its fresh kernel stack
// (16-byte aligned per the AAPCS64) and its saved LR to trampoline,
// matching task_create's "first context switch lands at entry" contract.
// The real entry closure is held in pending until the scheduler actually
// switches into this task.
func (cs *ContextSwitch) SetupContext(task *sched.Task, entry func()) {
	r := cs.slot(task)
	top := uintptr(task.KernelStack) + task.KernelStackSize
	top &^= 0xF
	r.sp = uint64(top)
	r.lr = uint64(trampolinePC)
	cs.pending[task] = entry
}

func (cs *ContextSwitch) arm(next *sched.Task) {
	if entry, ok := cs.pending[next]; ok {
		startingEntry = entry
		delete(cs.pending, next)
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

// normalMemoryMAIR is attribute index 0: Normal, Inner/Outer Write-Back
// Cacheable, matching mmu.c's single memory-type attribute entry.
const normalMemoryMAIR = 0xFF

// EnablePaging programs MAIR_EL1/TCR_EL1/TTBR0_EL1 from root and turns on
// the MMU, matching arm64_mmu_init's bring-up sequence.
func EnablePaging(root *vm.Root) {
	writeMAIR(normalMemoryMAIR)
	// TCR_EL1: T0SZ=16 (48-bit VA), 4KB granule, inner/outer
	// write-back cacheable, inner-shareable, matching mmu.c's constant.
	const tcrVal = (16) | (0 << 14) | (1 << 8) | (1 << 10) | (3 << 12)
	writeTCR(tcrVal)
	writeTTBR0(uint64(root.Root()))
	enableMMU()
}

// SwitchTable reloads TTBR0_EL1 with root's physical address, matching
// arm64_switch_page_table.
func SwitchTable(root *vm.Root) {
	writeTTBR0(uint64(root.Root()))
}

// InvalidatePage is a no-op: it issues no TLB invalidate-by-VA (that would
// need a small asm stub parameterized on va, TLBI VAE1IS, <Xt>, which this
// package does not have). Identity-mapping bring-up never removes a
// mapping, and nothing in the kernel calls this function.
func InvalidatePage(va mem.VirtAddr) {}

// Timer is the ARM generic timer's EL1 physical comparator (CNTP_*). Unlike
// the x86 PIT's auto-reloading rate generator, CNTP_CVAL_EL0 fires once and
// must be reprogrammed on every tick, matching timer_irq_handler's explicit
// "set next timer interrupt" step.
type Timer struct {
	interval uint64
}

// NewTimer reads CNTFRQ_EL0, derives the counter interval for hz interrupts
// per second, and arms the first comparator deadline, matching timer_init's
// frequency-read / interval-compute / disable / initial-cval-write / enable
// sequence.
func NewTimer(hz uint64) *Timer {
	freq := readCNTFRQ()
	t := &Timer{interval: freq / hz}
	writeCNTPCtl(0) // disabled while the comparator is being configured
	writeCNTPCVal(readCNTPCT() + t.interval)
	writeCNTPCtl(1) // ENABLE=1, IMASK=0
	return t
}

// Rearm reprograms the comparator to fire one interval from now. Called
// from the timer IRQ handler on every tick, matching timer_irq_handler's
// timer_write_cval(timer_get_counter() + timer_interval).
func (t *Timer) Rearm() {
	writeCNTPCVal(readCNTPCT() + t.interval)
}
