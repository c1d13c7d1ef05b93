package mm

import "testing"

func TestAddressRounding(t *testing.T) {
	specs := []struct {
		input      uint64
		expFloor   uint64
		expCeil    uint64
		expOffset  uint64
		expAligned bool
	}{
		{0, 0, 0, 0, true},
		{4095, 0, 1, 4095, false},
		{4096, 1, 1, 0, true},
		{4123, 1, 2, 27, false},
		{0x80200000, 0x80200, 0x80200, 0, true},
	}

	for specIndex, spec := range specs {
		pa := PhysAddr(spec.input)
		if got := uint64(pa.Floor()); got != spec.expFloor {
			t.Errorf("[spec %d] expected PhysAddr floor %#x; got %#x", specIndex, spec.expFloor, got)
		}
		if got := uint64(pa.Ceil()); got != spec.expCeil {
			t.Errorf("[spec %d] expected PhysAddr ceil %#x; got %#x", specIndex, spec.expCeil, got)
		}

		va := VirtAddr(spec.input)
		if got := uint64(va.Floor()); got != spec.expFloor {
			t.Errorf("[spec %d] expected VirtAddr floor %#x; got %#x", specIndex, spec.expFloor, got)
		}
		if got := uint64(va.Ceil()); got != spec.expCeil {
			t.Errorf("[spec %d] expected VirtAddr ceil %#x; got %#x", specIndex, spec.expCeil, got)
		}
		if got := va.PageOffset(); got != spec.expOffset {
			t.Errorf("[spec %d] expected offset %d; got %d", specIndex, spec.expOffset, got)
		}
		if got := va.Aligned(); got != spec.expAligned {
			t.Errorf("[spec %d] expected aligned to be %t; got %t", specIndex, spec.expAligned, got)
		}
	}
}

func TestVirtAddrCanonical(t *testing.T) {
	specs := []struct {
		va  uint64
		exp bool
	}{
		{0, true},
		{0x3fffffffff, true},
		{0x4000000000, false},
		{0xffffffc000000000, true},
		{0xfffffff000000000, true},
		{0xffffffffffffffff, true},
		{0x8000000000000000, false},
	}

	for specIndex, spec := range specs {
		if got := VirtAddr(spec.va).Canonical(); got != spec.exp {
			t.Errorf("[spec %d] expected Canonical(%#x) to be %t", specIndex, spec.va, spec.exp)
		}
	}
}

func TestVirtPageNumIndexes(t *testing.T) {
	specs := []struct {
		va  uint64
		exp [PageTableLevels]uint64
	}{
		{0x0, [PageTableLevels]uint64{0, 0, 0}},
		{0x1000, [PageTableLevels]uint64{0, 0, 1}},
		{0x40201000, [PageTableLevels]uint64{1, 1, 1}},
		{0xfffffffffffff000, [PageTableLevels]uint64{511, 511, 511}},
		{0xffffffffffffe000, [PageTableLevels]uint64{511, 511, 510}},
	}

	for specIndex, spec := range specs {
		if got := VirtAddr(spec.va).Floor().Indexes(); got != spec.exp {
			t.Errorf("[spec %d] expected indexes %v; got %v", specIndex, spec.exp, got)
		}
	}
}

func TestVPNRange(t *testing.T) {
	r := NewVPNRange(10, 20)
	if r.Len() != 10 {
		t.Fatalf("expected range length 10; got %d", r.Len())
	}
	if !r.Contains(10) || r.Contains(20) || r.Contains(9) {
		t.Fatal("expected range to be half-open")
	}

	specs := []struct {
		other VPNRange
		exp   bool
	}{
		{VPNRange{0, 10}, false},
		{VPNRange{0, 11}, true},
		{VPNRange{19, 30}, true},
		{VPNRange{20, 30}, false},
		{VPNRange{12, 13}, true},
	}
	for specIndex, spec := range specs {
		if got := r.Overlaps(spec.other); got != spec.exp {
			t.Errorf("[spec %d] expected Overlaps(%v) to be %t", specIndex, spec.other, spec.exp)
		}
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected NewVPNRange to panic for an inverted range")
		}
	}()
	NewVPNRange(5, 4)
}

func TestPageTableEntry(t *testing.T) {
	pte := NewPTE(PhysPageNum(0x80400), PTEValid|PTERead|PTEWrite|PTEUser)

	if exp := uint64(0x80400)<<10 | 0x17; uint64(pte) != exp {
		t.Fatalf("expected encoded entry %#x; got %#x", exp, uint64(pte))
	}
	if got := pte.PPN(); got != 0x80400 {
		t.Fatalf("expected PPN 0x80400; got %#x", uint64(got))
	}
	if !pte.IsValid() || !pte.Readable() || !pte.Writable() || pte.Executable() || !pte.User() {
		t.Fatalf("unexpected flag decoding for %#x", uint64(pte))
	}
	if !pte.IsLeaf() {
		t.Fatal("expected a readable entry to be a leaf")
	}
	if NewPTE(1, PTEValid).IsLeaf() {
		t.Fatal("expected an entry without R/W/X to point to a table")
	}

	pte.SetFlags(PTEAccessed | PTEDirty)
	if got := pte.Flags(); got != PTEValid|PTERead|PTEWrite|PTEUser|PTEAccessed|PTEDirty {
		t.Fatalf("unexpected flags after SetFlags: %#x", got)
	}
}
