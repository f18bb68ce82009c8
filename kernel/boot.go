// Package kernel wires the architecture-neutral core — PMM, kernel heap,
// page tables, IRQ dispatch, timer, and scheduler — into a single
// leaves-first bring-up sequence. It is the one well-defined anchor in
// place of scattered module-level globals: every subsystem singleton is
// a field of Kernel, constructed once by Boot.
//
// The architecture-specific half of this wiring — which controller, which
// context-switch back-end, which physical memory map — lives in
// GOARCH-suffixed files in this package (boot_amd64.go analogue would be
// arch_amd64.go/arch_arm64.go here) so the build selects one at compile
// time; nothing in this file runtime-dispatches on GOARCH.
//
// Grounded on src/kernel/kernel_main.c's bring-up ordering (pmm_init,
// kmalloc_init, mmu_init, irq_init, timer_init, scheduler start).
package kernel

import (
	"fmt"
	"unsafe"

	"zixiao/console"
	"zixiao/irq"
	"zixiao/kmalloc"
	"zixiao/kpanic"
	"zixiao/mem"
	"zixiao/sched"
	"zixiao/timer"
	"zixiao/vm"
)

// deviceRegion is one MMIO window identity-mapped during bring-up.
type deviceRegion struct {
	name string
	base mem.PhysAddr
	size uintptr
}

// bootcfg is the per-architecture physical-memory-map configuration:
// biscuit's own Phys_init constants (respgs, reserved pages) generalized
// to an assumed physical memory map per target platform. One value per
// architecture, supplied by that arch's arch_*.go file.
type bootcfg struct {
	memStart, memEnd mem.PhysAddr
	kernelRegionSize uintptr
	devices          []deviceRegion
	timerIRQ         uint32
	irqTableSize     int
	heapSize         uintptr
	idleStackSize    uintptr
}

// Kernel holds every subsystem singleton constructed during Boot.
type Kernel struct {
	Console *console.Console
	PMM     *mem.PMM
	Heap    *kmalloc.Heap
	VM      *vm.Root
	IRQ     *irq.Table
	Timer   *timer.Clock
	Sched   *sched.Scheduler

	arch kpanic.Arch
}

// carveHeap allocates enough PMM pages to back size bytes and returns the
// base of the run. Called once, before anything else touches the PMM, so
// the first-fit bitmap scan hands back a contiguous run of ascending
// addresses; the pages backing the heap are never freed.
func carveHeap(pmm *mem.PMM, size uintptr) (mem.PhysAddr, uintptr, bool) {
	pages := (size + mem.PageSize - 1) / mem.PageSize
	if pages == 0 {
		pages = 1
	}
	first, ok := pmm.AllocPage()
	if !ok {
		return 0, 0, false
	}
	for i := uintptr(1); i < pages; i++ {
		if _, ok := pmm.AllocPage(); !ok {
			return 0, 0, false
		}
	}
	return first, pages * mem.PageSize, true
}

// identityMap maps every page in [base, base+size) to itself with attrs,
// matching mmu_init's identity-mapping loop for the kernel region and each
// MMIO device window.
func identityMap(root *vm.Root, base mem.PhysAddr, size uintptr, attrs vm.PTE) error {
	start := mem.PageRoundDown(base)
	end := mem.PageRoundUp(base.Add(size))
	for pa := start; pa < end; pa = pa.Add(mem.PageSize) {
		va := mem.VirtAddr(pa)
		if err := root.Map(va, pa, attrs, func(mem.VirtAddr) {}); err != nil {
			return err
		}
	}
	return nil
}

// Boot brings the machine up leaves-first: PMM, kernel heap, page tables
// (identity-mapping the kernel region and every configured device window,
// then enabling translation), the interrupt controller, the timer (wired
// to the scheduler's tick and gated preemption), and finally the scheduler
// itself with its idle task. putChar is the architecture's raw character
// sink; idleEntry is PID 0's body, the infinite wait-for-interrupt loop.
func Boot(putChar console.PutCharFunc, idleEntry func()) (*Kernel, error) {
	cfg := defaultBootcfg
	c := console.New(putChar)

	c.Write("zixiao: bringing up physical memory allocator...\n")
	pmm, err := mem.NewPMM(cfg.memStart, cfg.memEnd)
	if err != nil {
		return nil, fmt.Errorf("kernel: pmm init: %w", err)
	}

	c.Write("zixiao: bringing up kernel heap...\n")
	heapBase, heapBytes, ok := carveHeap(pmm, cfg.heapSize)
	if !ok {
		return nil, fmt.Errorf("kernel: heap carve: out of pages")
	}
	heap, err := kmalloc.Init(uintptr(heapBase), heapBytes)
	if err != nil {
		return nil, fmt.Errorf("kernel: heap init: %w", err)
	}

	c.Write("zixiao: building page tables...\n")
	root, err := vm.CreateTable(pmm, vm.IdentityToPhys())
	if err != nil {
		return nil, fmt.Errorf("kernel: page table root: %w", err)
	}
	c.Printf("zixiao: identity mapping kernel region at 0x%x (%d bytes)\n", uint64(cfg.memStart), cfg.kernelRegionSize)
	if err := identityMap(root, cfg.memStart, cfg.kernelRegionSize, vm.PTEPresent|vm.PTEWritable); err != nil {
		return nil, fmt.Errorf("kernel: identity map kernel region: %w", err)
	}
	for _, d := range cfg.devices {
		c.Printf("zixiao: mapping device region %s at 0x%x\n", d.name, uint64(d.base))
		if err := identityMap(root, d.base, d.size, vm.PTEPresent|vm.PTEWritable|vm.PTEDevice); err != nil {
			return nil, fmt.Errorf("kernel: map device %s: %w", d.name, err)
		}
	}
	enablePaging(root)

	c.Write("zixiao: configuring interrupt controller...\n")
	ctrl := newController()
	irqTable := irq.NewTable(cfg.irqTableSize, ctrl, c.Printf)

	arch := newContextSwitcher()
	sc, err := sched.New(heap, arch, cfg.idleStackSize, idleEntry)
	if err != nil {
		return nil, fmt.Errorf("kernel: scheduler init: %w", err)
	}

	c.Write("zixiao: programming timer...\n")
	rearm := programTimer(timer.TickHz)
	preemptTicks := uint64(0)
	hooks := timer.Hooks{
		Tick: sc.Tick,
		Schedule: func() {
			preemptTicks++
			if preemptTicks%timer.PreemptTicks == 0 {
				sc.Schedule()
			}
		},
		Rearm: rearm,
	}
	clock := timer.NewClock(hooks, archPause())
	irqTable.Register(cfg.timerIRQ, clock.IRQHandler)
	ctrl.Enable(cfg.timerIRQ)

	return &Kernel{
		Console: c,
		PMM:     pmm,
		Heap:    heap,
		VM:      root,
		IRQ:     irqTable,
		Timer:   clock,
		Sched:   sc,
		arch:    panicArch(),
	}, nil
}

// Start unmasks CPU-level interrupts and performs the first-task
// bootstrap. If a task is ready, the first schedule() jumps straight into
// its saved context and does not return; if none is ready, Start returns
// and the caller's context stays the running (idle) one.
func (k *Kernel) Start() {
	archUnmask()()
	k.Sched.Schedule()
}

// peekStack reads the uint64 at sp+word*8, identity-mapped so the
// physical and virtual addresses coincide; used only by the panic path's
// top-of-stack dump.
func peekStack(sp uint64, word int) uint64 {
	if sp == 0 {
		return 0
	}
	addr := uintptr(sp) + uintptr(word)*8
	return *(*uint64)(unsafe.Pointer(addr))
}

// Panic runs the architecture-neutral panic path: banner, register dump,
// disassembly, stack dump, halt. It never returns.
func (k *Kernel) Panic(message string, regs *kpanic.Regs) {
	kpanic.Panic(k.Console, message, regs, k.arch, peekStack, dumpRegs, archHalt)
}
