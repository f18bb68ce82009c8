package mem

import (
	"fmt"
	"math/bits"
)

// PMM is a page-granular bitmap allocator over a contiguous physical range
// [start, end). One bit per page: 0 is free, 1 is allocated. The pages at
// the front of the managed range that the bitmap would occupy are
// pre-marked allocated so they are never handed out; the bitmap words
// themselves are held in a Go slice, not stored in that range.
//
// Grounded on src/kernel/mm/pmm.c; the bitmap word layout follows biscuit's
// mem.Physmem_t free-list bookkeeping style (mem/mem.go) reworked around an
// actual bitmap rather than a refcounted free-list.
type PMM struct {
	bitmap      []uint64
	start       PhysAddr
	end         PhysAddr
	totalPages  int
	freePages   int
	bitmapPages int
}

// NewPMM page-aligns [start, end), allocates a zeroed bitmap as a Go slice,
// and marks the pages at start that the bitmap's size covers as allocated.
// It does not write the bitmap into the managed range. It fails if the
// resulting pool has zero usable pages.
func NewPMM(start, end PhysAddr) (*PMM, error) {
	alignedStart := PageRoundUp(start)
	alignedEnd := PageRoundDown(end)
	if alignedEnd <= alignedStart {
		return nil, fmt.Errorf("mem: empty or invalid range [%#x, %#x)", start, end)
	}

	totalPages := int((alignedEnd - alignedStart) / PageSize)
	words := (totalPages + 63) / 64
	bitmapBytes := words * 8
	bitmapPages := int(PageRoundUp(PhysAddr(bitmapBytes))) / PageSize

	if bitmapPages >= totalPages {
		return nil, fmt.Errorf("mem: range too small to hold its own bitmap (%d pages)", totalPages)
	}

	p := &PMM{
		bitmap:      make([]uint64, words),
		start:       alignedStart,
		end:         alignedEnd,
		totalPages:  totalPages,
		bitmapPages: bitmapPages,
	}
	for i := 0; i < bitmapPages; i++ {
		p.setBit(i)
	}
	p.freePages = totalPages - bitmapPages
	return p, nil
}

func (p *PMM) setBit(page int) {
	p.bitmap[page/64] |= 1 << uint(page%64)
}

func (p *PMM) clearBit(page int) {
	p.bitmap[page/64] &^= 1 << uint(page%64)
}

func (p *PMM) testBit(page int) bool {
	return p.bitmap[page/64]&(1<<uint(page%64)) != 0
}

// AllocPage returns a free 4 KiB page, first-fit from index 0, or ok==false
// when the pool is exhausted. free_pages is advisory: if it disagrees with
// the bitmap (corruption), the linear scan still governs and NONE is
// returned once the scan finds nothing, rather than trusting the counter.
func (p *PMM) AllocPage() (PhysAddr, bool) {
	if p.freePages == 0 {
		return 0, false
	}
	for i := 0; i < p.totalPages; i++ {
		if !p.testBit(i) {
			p.setBit(i)
			p.freePages--
			return p.start.Add(uintptr(i) * PageSize), true
		}
	}
	return 0, false
}

// FreePage releases a previously allocated page. It is a no-op for
// addresses outside [start, end) or pages whose bit is already clear
// (defensive: prevents double-free corruption of the bitmap).
func (p *PMM) FreePage(pa PhysAddr) {
	if pa < p.start || pa >= p.end {
		return
	}
	off := pa - p.start
	if off%PageSize != 0 {
		return
	}
	page := int(off / PageSize)
	if !p.testBit(page) {
		return
	}
	p.clearBit(page)
	p.freePages++
}

// FreePages reports the number of unallocated pages.
func (p *PMM) FreePages() int { return p.freePages }

// TotalPages reports the total number of manageable pages, including the
// pages the bitmap itself occupies.
func (p *PMM) TotalPages() int { return p.totalPages }

// AllocatedPages reports the number of currently allocated pages. It is
// kept equal to the bitmap's population count for the lifetime of the PMM
// (an invariant Verify checks by recomputing it from scratch).
func (p *PMM) AllocatedPages() int {
	return p.totalPages - p.freePages
}

// Verify recomputes the allocated-page count directly from the bitmap and
// reports whether it matches the incrementally maintained counters. It
// exists to test the §8 PMM-conservation invariant without exposing the
// bitmap representation.
func (p *PMM) Verify() bool {
	set := 0
	for _, w := range p.bitmap {
		set += bits.OnesCount64(w)
	}
	return set == p.AllocatedPages()
}

// Start returns the lower bound of the managed range.
func (p *PMM) Start() PhysAddr { return p.start }

// End returns the upper (exclusive) bound of the managed range.
func (p *PMM) End() PhysAddr { return p.end }
