// Package kpanic implements the kernel's one unrecoverable-fault path: an
// orderly banner, an architecture register dump, a short disassembly of
// the faulting instruction when code bytes are available, a top-of-stack
// dump, and a halt that never returns.
//
// Grounded on src/kernel/panic.c's banner shape (separator, centered
// phrases, a seeded-LCG "mysterious quote", the message, then
// arch_panic_dump_regs, then the top 8 stack words) and on
// src/include/kernel/panic.h's panic_regs_t layout. Named kpanic rather
// than panic so importers never shadow the builtin panic() identifier.
package kpanic

import (
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/text/width"

	"zixiao/console"
)

// bannerWidth matches panic.c's CONSOLE_WIDTH.
const bannerWidth = 80

// quotes are the "mysterious quotes" panic.c prints, one chosen per panic
// by a seeded LCG. The original's literal Chinese strings are cosmetic
// (nothing downstream inspects their content), so this
// keeps the structural behavior — seeded, deterministic, one-of-several —
// with a short kernel-flavored list instead.
var quotes = []string{
	"a core dies alone",
	"the stack remembers what the heap forgot",
	"no handler was installed for this",
	"trespass beyond this point at your own risk",
	"what was mapped is now unmapped",
	"ashes to ashes, pages to the bitmap",
	"going up was easy; coming down never is",
}

// Regs is the saved register set a panic reports: architecture-neutral
// general-purpose registers plus PC/SP/LR/flags, mirroring panic_regs_t.
// CodeBytes, when non-nil, is a short window of instruction bytes starting
// at PC, captured by the arch backend before the dump — not all faults
// have readable code memory, so it may be left nil.
type Regs struct {
	GP        [32]uint64
	PC        uint64
	SP        uint64
	LR        uint64
	Flags     uint64
	CodeBytes []byte
}

// Arch selects which instruction-set decoder disassembles CodeBytes.
type Arch int

const (
	ArchAMD64 Arch = iota
	ArchARM64
)

// DumpRegs is the architecture-specific register line emitter: x86_64
// prints RAX..R15/CR0..CR4, ARM64 prints X0..X30/ESR_EL1/FAR_EL1/etc. Both
// backends' concrete registers live in arch/; kpanic only sequences the
// banner around whatever this prints.
type DumpRegs func(c *console.Console, regs *Regs)

// Halt disables interrupts and parks the CPU forever (arch.Halt
// satisfies this). Panic always calls it last and never returns.
type Halt func() /* noreturn in practice */

// seed is panic.c's LCG seed constant, kept so repeated panics in a single
// boot pick quotes in the same reproducible sequence the C original does.
var seed uint64 = 0x5D1A0C0DE

func nextQuote() string {
	seed = seed*1664525 + 1013904223
	idx := uint32(seed>>32) % uint32(len(quotes))
	return quotes[idx]
}

// runeWidth reports a rune's terminal display width: 2 for East-Asian wide
/// fullwidth runes, 1 otherwise. print_centered in the C original measures
// with strlen, which undercounts any embedded wide rune; x/text/width lets
// Printf-style centering here get it right.
func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		w += runeWidth(r)
	}
	return w
}

func printCentered(c *console.Console, text string) {
	w := displayWidth(text)
	if w >= bannerWidth {
		c.Printf("%s\n", text)
		return
	}
	pad := (bannerWidth - w) / 2
	for i := 0; i < pad; i++ {
		c.PutChar(' ')
	}
	c.Printf("%s\n", text)
}

func printSeparator(c *console.Console) {
	for i := 0; i < bannerWidth; i++ {
		c.PutChar('=')
	}
	c.PutChar('\n')
}

// disassemble decodes the single instruction at the start of code and
// returns a one-line GNU-syntax rendering, or "" if code is empty or
// doesn't decode — a panic must never fail harder while trying to explain
// itself.
func disassemble(arch Arch, code []byte) string {
	if len(code) == 0 {
		return ""
	}
	switch arch {
	case ArchAMD64:
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			return ""
		}
		return x86asm.GNUSyntax(inst, 0, nil)
	case ArchARM64:
		inst, err := arm64asm.Decode(code)
		if err != nil {
			return ""
		}
		return arm64asm.GNUSyntax(inst)
	default:
		return ""
	}
}

// Panic prints the banner, the message, the register dump, a one-line
// disassembly of the faulting instruction when regs carries code bytes,
// the top 8 stack words (read through peekStack, which must tolerate an
// unmapped or nil stack pointer by returning zero), and halts. It never
// returns.
func Panic(c *console.Console, message string, regs *Regs, arch Arch, peekStack func(sp uint64, word int) uint64, dump DumpRegs, halt Halt) {
	c.Write("\n\n")
	printSeparator(c)
	c.PutChar('\n')

	c.Write("KERNEL PANIC!\n\n")

	printCentered(c, "a falling star")
	c.PutChar('\n')
	printCentered(c, "dreams end where the garden wakes")
	c.PutChar('\n')
	printCentered(c, nextQuote())
	c.PutChar('\n')

	printSeparator(c)
	c.PutChar('\n')

	if message != "" {
		c.Printf("Panic message: %s\n\n", message)
	}

	if regs != nil {
		c.Write("=== Register Dump ===\n")
		if dump != nil {
			dump(c, regs)
		}
		c.PutChar('\n')
	}

	c.Write("=== Stack Trace ===\n")
	var sp, pc, lr uint64
	if regs != nil {
		sp, pc, lr = regs.SP, regs.PC, regs.LR
	}
	c.Printf("Stack Pointer (SP): 0x%016llx\n", sp)
	c.Printf("Program Counter (PC): 0x%016llx\n", pc)
	c.Printf("Link Register (LR): 0x%016llx\n", lr)
	c.PutChar('\n')

	if regs != nil {
		if asm := disassemble(arch, regs.CodeBytes); asm != "" {
			c.Printf("Faulting instruction: %s\n\n", asm)
		}
	}

	if sp != 0 && peekStack != nil {
		c.Write("=== Stack Contents (top 8 entries) ===\n")
		for i := 0; i < 8; i++ {
			c.Printf("[SP+%d]: 0x%016llx\n", i*8, peekStack(sp, i))
		}
		c.PutChar('\n')
	}

	printSeparator(c)
	c.Write("\nSystem halted. Please reboot.\n\n")

	halt()
}
