// Package vm implements the architecture-neutral 4-level page table walk:
// level0 -> level1 -> level2 -> level3, 9 bits of index per level, 48-bit
// virtual addresses, a 12-bit page offset. Concrete ARM64/x86-64 MMU
// register programming (TTBR0_EL1/MAIR_EL1 vs. CR3/PAT) lives in arch/; this
// package only builds and walks the tree in memory.
//
// Grounded on src/arch/arm64/mm/mmu.c's get_or_create_table/arm64_map_page
// walk shape, generalized off ARM64's specific encoding the way biscuit
// keeps its own PTE bit constants (PTE_P, PTE_W, PTE_U, PTE_ADDR in
// mem/mem.go) as named uintptr masks rather than magic numbers.
package vm

import (
	"fmt"
	"unsafe"

	"zixiao/mem"
)

// PTE is one page table entry. The bit layout is Zixiao's own neutral
// encoding, not bit-compatible with either real architecture's hardware
// format; arch/ translates to/from the real encoding when it loads a table
// into TTBR0_EL1 or CR3.
type PTE uint64

const (
	PTEPresent  PTE = 1 << 0 // entry is valid (table or leaf)
	PTETable    PTE = 1 << 1 // entry points at a next-level table, not a leaf
	PTEWritable PTE = 1 << 2
	PTEUser     PTE = 1 << 3
	PTEDevice   PTE = 1 << 4 // leaf only: device (strongly-ordered) memory type
	PTEAccessed PTE = 1 << 5

	pteFlagBits  = 12
	pteAddrMask  = PTE(^uintptr(0)) &^ (1<<pteFlagBits - 1)
	entriesPerTbl = 512 // 9 bits of index per level
)

func (e PTE) present() bool { return e&PTEPresent != 0 }
func (e PTE) isTable() bool { return e&PTETable != 0 }
func (e PTE) addr() mem.PhysAddr {
	return mem.PhysAddr(uintptr(e) &^ uintptr(1<<pteFlagBits-1))
}

func leafEntry(pa mem.PhysAddr, attrs PTE) PTE {
	return PTE(pa)&pteAddrMask | attrs | PTEPresent
}

func tableEntry(pa mem.PhysAddr) PTE {
	return PTE(pa)&pteAddrMask | PTEPresent | PTETable
}

// table is one level of the tree: 512 entries, one physical page.
type table [entriesPerTbl]PTE

// PageAllocator supplies the zeroed physical pages a page table's internal
// nodes are built from. mem.PMM satisfies this directly.
type PageAllocator interface {
	AllocPage() (mem.PhysAddr, bool)
}

// ToPhys maps a page-table-node physical address to a pointer the walker
// can dereference. On real hardware this is an identity or direct-mapped
// window; tests supply a lookup into an arena of Go-allocated table nodes.
type ToPhys func(mem.PhysAddr) *table

// Root is a page table's top-level (level 0) node together with the
// indirection needed to dereference child node addresses.
type Root struct {
	top   mem.PhysAddr
	alloc PageAllocator
	deref ToPhys
}

const (
	level0Shift = 39
	level1Shift = 30
	level2Shift = 21
	level3Shift = 12
	indexMask   = 0x1FF
	vaBits      = 48
)

func index(va mem.VirtAddr, shift uint) uintptr {
	return (uintptr(va) >> shift) & indexMask
}

// IdentityToPhys returns a ToPhys that treats a node's physical address as
// directly dereferenceable, matching the identity-mapping bring-up phase
// (the kernel transitions from translation-off to translation-on while
// executing its own code). table stays unexported
// so only this package's own pointer conversion needs the unsafe cast; an
// arch back-end just passes this value to vm.CreateTable.
func IdentityToPhys() ToPhys {
	return func(pa mem.PhysAddr) *table {
		return (*table)(unsafe.Pointer(uintptr(pa)))
	}
}

// CreateTable allocates and zeroes a new top-level table, ready for Map.
func CreateTable(alloc PageAllocator, deref ToPhys) (*Root, error) {
	pa, ok := alloc.AllocPage()
	if !ok {
		return nil, fmt.Errorf("vm: out of pages allocating root table")
	}
	*deref(pa) = table{}
	return &Root{top: pa, alloc: alloc, deref: deref}, nil
}

// Root returns the physical address of the top-level table, the value an
// arch backend programs into TTBR0_EL1/CR3.
func (r *Root) Root() mem.PhysAddr { return r.top }

func (r *Root) walkCreate(va mem.VirtAddr) (*table, uintptr, error) {
	cur := r.deref(r.top)
	shifts := [3]uint{level0Shift, level1Shift, level2Shift}
	for _, shift := range shifts {
		idx := index(va, shift)
		e := cur[idx]
		if !e.present() {
			pa, ok := r.alloc.AllocPage()
			if !ok {
				return nil, 0, fmt.Errorf("vm: out of pages building table for va %#x", va)
			}
			*r.deref(pa) = table{}
			cur[idx] = tableEntry(pa)
			cur = r.deref(pa)
			continue
		}
		if !e.isTable() {
			return nil, 0, fmt.Errorf("vm: va %#x: level entry is a leaf where a table was expected", va)
		}
		cur = r.deref(e.addr())
	}
	return cur, index(va, level3Shift), nil
}

// Map installs pa at va with the given leaf attributes, replacing any
// existing leaf mapping (last-write-wins, matching the IRQ table's own
// registration policy). When a present leaf is replaced, it invalidates the
// TLB for va via inval unless inval is nil; installing a leaf in an empty
// slot invalidates nothing. Addresses are page-aligned down before use.
func (r *Root) Map(va mem.VirtAddr, pa mem.PhysAddr, attrs PTE, inval func(mem.VirtAddr)) error {
	va = mem.PageRoundDown(va)
	pa = mem.PageRoundDown(pa)

	leaf, idx, err := r.walkCreate(va)
	if err != nil {
		return err
	}
	replaced := leaf[idx].present()
	leaf[idx] = leafEntry(pa, attrs)
	if replaced && inval != nil {
		inval(va)
	}
	return nil
}

// Walk returns the physical address va currently maps to, and its leaf
// attributes, or ok==false if va is unmapped.
func (r *Root) Walk(va mem.VirtAddr) (mem.PhysAddr, PTE, bool) {
	va = mem.PageRoundDown(va)
	cur := r.deref(r.top)
	shifts := [3]uint{level0Shift, level1Shift, level2Shift}
	for _, shift := range shifts {
		e := cur[index(va, shift)]
		if !e.present() || !e.isTable() {
			return 0, 0, false
		}
		cur = r.deref(e.addr())
	}
	e := cur[index(va, level3Shift)]
	if !e.present() {
		return 0, 0, false
	}
	attrs := e &^ (pteAddrMask | PTEPresent)
	return e.addr().Add(uintptr(va) & mem.PageOffsetMask), attrs, true
}

// Unmap clears va's leaf entry, if any, and invalidates the TLB for it.
func (r *Root) Unmap(va mem.VirtAddr, inval func(mem.VirtAddr)) {
	va = mem.PageRoundDown(va)
	cur := r.deref(r.top)
	shifts := [3]uint{level0Shift, level1Shift, level2Shift}
	for _, shift := range shifts {
		e := cur[index(va, shift)]
		if !e.present() || !e.isTable() {
			return
		}
		cur = r.deref(e.addr())
	}
	idx := index(va, level3Shift)
	if !cur[idx].present() {
		return
	}
	cur[idx] = 0
	if inval != nil {
		inval(va)
	}
}
