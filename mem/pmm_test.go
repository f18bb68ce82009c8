package mem

import "testing"

// Alloc, free, realloc should reuse the freed page.
func TestPMMReuseScenario(t *testing.T) {
	p, err := NewPMM(0x40000000, 0x40010000)
	if err != nil {
		t.Fatalf("NewPMM: %v", err)
	}
	if got, want := p.TotalPages(), 16; got != want {
		t.Fatalf("TotalPages = %d, want %d", got, want)
	}
	if got, want := p.FreePages(), 15; got != want {
		t.Fatalf("FreePages = %d, want %d", got, want)
	}

	a, ok := p.AllocPage()
	if !ok || a != 0x40001000 {
		t.Fatalf("a = %#x, ok=%v, want 0x40001000", a, ok)
	}
	b, ok := p.AllocPage()
	if !ok || b != 0x40002000 {
		t.Fatalf("b = %#x, ok=%v, want 0x40002000", b, ok)
	}
	c, ok := p.AllocPage()
	if !ok || c != 0x40003000 {
		t.Fatalf("c = %#x, ok=%v, want 0x40003000", c, ok)
	}

	p.FreePage(b)
	d, ok := p.AllocPage()
	if !ok || d != b {
		t.Fatalf("d = %#x, ok=%v, want reuse of b=%#x", d, ok, b)
	}
	if got, want := p.FreePages(), 12; got != want {
		t.Fatalf("FreePages = %d, want %d", got, want)
	}
}

func TestPMMExhaustion(t *testing.T) {
	p, err := NewPMM(0, 0x4000) // 4 pages, 1 for bitmap -> 3 free
	if err != nil {
		t.Fatal(err)
	}
	var got []PhysAddr
	for {
		a, ok := p.AllocPage()
		if !ok {
			break
		}
		got = append(got, a)
	}
	if len(got) != 3 {
		t.Fatalf("allocated %d pages, want 3", len(got))
	}
	if _, ok := p.AllocPage(); ok {
		t.Fatal("AllocPage succeeded after exhaustion")
	}
	if !p.Verify() {
		t.Fatal("bitmap popcount disagrees with allocated-page count")
	}
}

func TestPMMFreeIsDefensive(t *testing.T) {
	p, err := NewPMM(0x1000, 0x5000)
	if err != nil {
		t.Fatal(err)
	}
	free := p.FreePages()

	p.FreePage(0) // outside range
	p.FreePage(p.End())
	if p.FreePages() != free {
		t.Fatal("FreePage on out-of-range address mutated free count")
	}

	a, _ := p.AllocPage()
	p.FreePage(a)
	before := p.FreePages()
	p.FreePage(a) // double free
	if p.FreePages() != before {
		t.Fatal("double FreePage mutated free count")
	}
}

// AllocatedPages must track the bitmap's population count exactly, even
// across an interleaved alloc/free sequence.
func TestPMMConservation(t *testing.T) {
	p, err := NewPMM(0, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	total := p.TotalPages()

	live := map[PhysAddr]bool{}
	ops := []struct {
		alloc bool
	}{
		{true}, {true}, {true}, {false}, {true}, {true}, {false}, {false}, {true},
	}
	var lastAlloc PhysAddr
	for _, op := range ops {
		if op.alloc {
			a, ok := p.AllocPage()
			if !ok {
				continue
			}
			if live[a] {
				t.Fatalf("address %#x allocated twice while live", a)
			}
			live[a] = true
			lastAlloc = a
		} else if lastAlloc != 0 {
			p.FreePage(lastAlloc)
			delete(live, lastAlloc)
			lastAlloc = 0
		}
	}
	// The bitmap's own pages count as allocated, so they come off the
	// free count alongside the live allocations.
	if want := total - p.bitmapPages - len(live); p.FreePages() != want {
		t.Fatalf("FreePages=%d, want %d (total=%d bitmap=%d live=%d)", p.FreePages(), want, total, p.bitmapPages, len(live))
	}
	if !p.Verify() {
		t.Fatal("bitmap disagrees with allocated-page count")
	}
}

func TestNewPMMRejectsEmptyRange(t *testing.T) {
	if _, err := NewPMM(0x1000, 0x1000); err == nil {
		t.Fatal("expected error for empty range")
	}
	if _, err := NewPMM(0x2000, 0x1000); err == nil {
		t.Fatal("expected error for end <= start")
	}
}
