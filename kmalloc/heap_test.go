package kmalloc

import (
	"testing"
	"unsafe"
)

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()
	buf := make([]byte, size)
	base := uintptr(unsafe.Pointer(&buf[0]))
	h, err := Init(base, uintptr(size))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// keep buf alive for the lifetime of the test by referencing it via a
	// closure the caller's defer can't reach otherwise; t.Cleanup pins it.
	t.Cleanup(func() { _ = buf })
	return h
}

// Heap split + reuse, first fit.
func TestHeapSplitAndReuse(t *testing.T) {
	h := newTestHeap(t, 4096)

	p1, ok := h.Alloc(64)
	if !ok {
		t.Fatal("alloc p1 failed")
	}
	p2, ok := h.Alloc(128)
	if !ok {
		t.Fatal("alloc p2 failed")
	}
	p3, ok := h.Alloc(256)
	if !ok {
		t.Fatal("alloc p3 failed")
	}

	h.Free(p2)

	p4, ok := h.Alloc(100)
	if !ok {
		t.Fatal("alloc p4 failed")
	}
	if p4 != p2 {
		t.Fatalf("p4 = %#x, want reuse of p2 = %#x (first fit)", p4, p2)
	}

	h.Free(p1)
	h.Free(p3)
	h.Free(p4)

	_, used, _ := h.Stats()
	if used != 0 {
		t.Fatalf("used = %d, want 0 after freeing everything", used)
	}
}

func TestAllocRoundsUpToWord(t *testing.T) {
	h := newTestHeap(t, 4096)
	p, ok := h.Alloc(1)
	if !ok {
		t.Fatal("alloc failed")
	}
	if p%wordSize != 0 {
		t.Fatalf("pointer %#x not %d-byte aligned", p, wordSize)
	}
}

func TestFreeRejectsDoubleFree(t *testing.T) {
	h := newTestHeap(t, 4096)
	p, _ := h.Alloc(32)
	_, used1, _ := h.Stats()

	h.Free(p)
	_, used2, _ := h.Stats()
	if used2 >= used1 {
		t.Fatal("Free did not reduce used bytes")
	}

	h.Free(p) // double free, must no-op
	_, used3, _ := h.Stats()
	if used3 != used2 {
		t.Fatal("double Free mutated heap state")
	}
}

func TestFreeIgnoresForeignPointer(t *testing.T) {
	h := newTestHeap(t, 4096)
	_, usedBefore, _ := h.Stats()
	h.Free(h.base + 7) // not a header address we ever returned
	_, usedAfter, _ := h.Stats()
	if usedBefore != usedAfter {
		t.Fatal("Free on a foreign/misaligned pointer mutated heap state")
	}
}

func TestFreeIgnoresNil(t *testing.T) {
	h := newTestHeap(t, 4096)
	h.Free(0) // must not panic
}

func TestAllocExhaustion(t *testing.T) {
	h := newTestHeap(t, 256)
	var got int
	for {
		if _, ok := h.Alloc(32); !ok {
			break
		}
		got++
	}
	if got == 0 {
		t.Fatal("never allocated anything from a 256-byte heap")
	}
	if _, ok := h.Alloc(1 << 20); ok {
		t.Fatal("satisfied an allocation far larger than the heap")
	}
}

func TestAllocAlignedReturnsAlignedFreeablePointer(t *testing.T) {
	h := newTestHeap(t, 8192)
	for _, align := range []uintptr{16, 64, 4096} {
		p, ok := h.AllocAligned(100, align)
		if !ok {
			t.Fatalf("AllocAligned(100, %d) failed", align)
		}
		if p%align != 0 {
			t.Fatalf("AllocAligned(100, %d) = %#x, not aligned", align, p)
		}
		_, usedBefore, _ := h.Stats()
		h.Free(p)
		_, usedAfter, _ := h.Stats()
		if usedAfter >= usedBefore {
			t.Fatalf("Free(AllocAligned(...)) did not reclaim memory for align=%d", align)
		}
	}
}

func TestAllocAlignedRejectsNonPowerOfTwo(t *testing.T) {
	h := newTestHeap(t, 4096)
	if _, ok := h.AllocAligned(64, 3); ok {
		t.Fatal("AllocAligned accepted a non-power-of-two alignment")
	}
}

func TestInitRejectsUndersizedRegion(t *testing.T) {
	buf := make([]byte, 4)
	base := uintptr(unsafe.Pointer(&buf[0]))
	if _, err := Init(base, uintptr(len(buf))); err == nil {
		t.Fatal("expected error initializing a heap smaller than one header")
	}
}
