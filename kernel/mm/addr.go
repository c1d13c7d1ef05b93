package mm

import "fmt"

// PhysAddr is a physical memory address.
type PhysAddr uint64

// VirtAddr is a virtual memory address. Values are kept in their full 64-bit
// form so kernel addresses near the top of the space keep their sign bits.
type VirtAddr uint64

// PhysPageNum is the index of a physical frame (PhysAddr >> PageShift).
type PhysPageNum uint64

// VirtPageNum is the index of a virtual page (VirtAddr >> PageShift).
type VirtPageNum uint64

// PageOffset returns the offset of the address within its frame.
func (a PhysAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

// Aligned returns true if the address is aligned to a frame boundary.
func (a PhysAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the frame containing the address.
func (a PhysAddr) Floor() PhysPageNum { return PhysPageNum(uint64(a) >> PageShift) }

// Ceil returns the first frame that starts at or after the address.
func (a PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum((uint64(a) + PageSize - 1) >> PageShift)
}

func (a PhysAddr) String() string { return fmt.Sprintf("pa:%#x", uint64(a)) }

// Addr returns the physical address of the first byte in the frame.
func (ppn PhysPageNum) Addr() PhysAddr { return PhysAddr(uint64(ppn) << PageShift) }

// PageOffset returns the offset of the address within its page.
func (a VirtAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

// Aligned returns true if the address is aligned to a page boundary.
func (a VirtAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the page containing the address.
func (a VirtAddr) Floor() VirtPageNum { return VirtPageNum(uint64(a) >> PageShift) }

// Ceil returns the first page that starts at or after the address.
func (a VirtAddr) Ceil() VirtPageNum {
	if a == 0 {
		return 0
	}
	return VirtPageNum((uint64(a)-1)>>PageShift + 1)
}

// Canonical returns true if bits 63..39 of the address all equal bit 38.
func (a VirtAddr) Canonical() bool {
	upper := int64(a) >> (VAWidth - 1)
	return upper == 0 || upper == -1
}

func (a VirtAddr) String() string { return fmt.Sprintf("va:%#x", uint64(a)) }

// Addr returns the virtual address of the first byte in the page.
func (vpn VirtPageNum) Addr() VirtAddr { return VirtAddr(uint64(vpn) << PageShift) }

// Indexes splits the page number into its per-level table indexes, top
// level first.
func (vpn VirtPageNum) Indexes() [PageTableLevels]uint64 {
	var idx [PageTableLevels]uint64
	v := uint64(vpn)
	for level := PageTableLevels - 1; level >= 0; level-- {
		idx[level] = v & (EntriesPerTable - 1)
		v >>= 9
	}
	return idx
}

// VPNRange is the half-open page range [Start, End).
type VPNRange struct {
	Start, End VirtPageNum
}

// NewVPNRange returns the range [start, end). It panics if end < start.
func NewVPNRange(start, end VirtPageNum) VPNRange {
	if end < start {
		panic(fmt.Sprintf("mm: invalid page range [%#x, %#x)", uint64(start), uint64(end)))
	}
	return VPNRange{Start: start, End: end}
}

// Len returns the number of pages in the range.
func (r VPNRange) Len() uint64 { return uint64(r.End - r.Start) }

// Contains returns true if vpn lies inside the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool { return vpn >= r.Start && vpn < r.End }

// Overlaps returns true if the two ranges share at least one page.
func (r VPNRange) Overlaps(other VPNRange) bool {
	return r.Start < other.End && other.Start < r.End
}
