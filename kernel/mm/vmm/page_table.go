package vmm

import (
	"rvos/kernel"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
)

// satpModeSv39 is the satp MODE field selecting Sv39 translation.
const satpModeSv39 = uint64(8) << 60

var (
	errAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
	errNotMapped     = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}
)

// PageTable is a three-level Sv39 page table. A table created by
// NewPageTable owns its root and every intermediate table frame; a table
// rebuilt with FromToken owns nothing and may only be used for lookups.
type PageTable struct {
	mem    *mm.PhysMemory
	alloc  *pmm.FrameAllocator
	root   mm.PhysPageNum
	frames []*pmm.FrameTracker
}

// NewPageTable allocates an empty page table.
func NewPageTable(alloc *pmm.FrameAllocator) *PageTable {
	rootFrame := alloc.MustAlloc()
	return &PageTable{
		mem:    alloc.Memory(),
		alloc:  alloc,
		root:   rootFrame.PPN,
		frames: []*pmm.FrameTracker{rootFrame},
	}
}

// FromToken returns a lookup-only view of the page table selected by a satp
// value.
func FromToken(mem *mm.PhysMemory, satp uint64) *PageTable {
	return &PageTable{
		mem:  mem,
		root: mm.PhysPageNum(satp & (1<<mm.PPNWidth - 1)),
	}
}

// Token returns the satp value that activates this table.
func (pt *PageTable) Token() uint64 {
	return satpModeSv39 | uint64(pt.root)
}

// Root returns the frame holding the top-level table.
func (pt *PageTable) Root() mm.PhysPageNum {
	return pt.root
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level (0 is the root) and the entry
// at that level. If the function returns false, then the walk is aborted.
type pageTableWalker func(level uint8, pte *mm.PageTableEntry) bool

// walk performs a page table walk for vpn, calling walkFn with the entry
// that corresponds to each level. The walk descends through the entry
// after walkFn returns, so walkFn may install a missing table.
func (pt *PageTable) walk(vpn mm.VirtPageNum, walkFn pageTableWalker) {
	idx := vpn.Indexes()
	table := pt.root
	for level := uint8(0); level < mm.PageTableLevels; level++ {
		pte := &pt.mem.PTEs(table)[idx[level]]
		if !walkFn(level, pte) || level == mm.PageTableLevels-1 {
			return
		}
		table = pte.PPN()
	}
}

// Map installs a leaf entry for vpn pointing at ppn, creating intermediate
// tables as needed. Mapping an already mapped page halts the kernel.
func (pt *PageTable) Map(vpn mm.VirtPageNum, ppn mm.PhysPageNum, flags mm.PTEFlags) {
	pt.walk(vpn, func(level uint8, pte *mm.PageTableEntry) bool {
		if level == mm.PageTableLevels-1 {
			if pte.IsValid() {
				kfmt.Printf("[vmm] vpn %#x is mapped to ppn %#x\n", uint64(vpn), uint64(pte.PPN()))
				kfmt.Panic(errAlreadyMapped)
				return false
			}
			*pte = mm.NewPTE(ppn, flags|mm.PTEValid)
			return true
		}

		if !pte.IsValid() {
			frame := pt.alloc.MustAlloc()
			pt.frames = append(pt.frames, frame)
			*pte = mm.NewPTE(frame.PPN, mm.PTEValid)
		}
		return true
	})
}

// Unmap clears the leaf entry for vpn. Unmapping a page that is not mapped
// halts the kernel.
func (pt *PageTable) Unmap(vpn mm.VirtPageNum) {
	pt.walk(vpn, func(level uint8, pte *mm.PageTableEntry) bool {
		if !pte.IsValid() {
			kfmt.Printf("[vmm] vpn %#x has no mapping\n", uint64(vpn))
			kfmt.Panic(errNotMapped)
			return false
		}
		if level == mm.PageTableLevels-1 {
			*pte = 0
		}
		return true
	})
}

// Translate returns the leaf entry for vpn. The boolean result is false if
// any level of the walk is not valid.
func (pt *PageTable) Translate(vpn mm.VirtPageNum) (mm.PageTableEntry, bool) {
	var entry mm.PageTableEntry
	pt.walk(vpn, func(level uint8, pte *mm.PageTableEntry) bool {
		if !pte.IsValid() {
			return false
		}
		if level == mm.PageTableLevels-1 {
			entry = *pte
		}
		return true
	})
	return entry, entry.IsValid()
}

// TranslateVA returns the physical address va maps to.
func (pt *PageTable) TranslateVA(va mm.VirtAddr) (mm.PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return pte.PPN().Addr() + mm.PhysAddr(va.PageOffset()), true
}

// Free returns every frame owned by the table to the allocator. The table
// must not be used afterwards.
func (pt *PageTable) Free() {
	for _, frame := range pt.frames {
		frame.Release()
	}
	pt.frames = nil
}
