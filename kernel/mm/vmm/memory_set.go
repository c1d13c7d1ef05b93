package vmm

import (
	"bytes"
	"debug/elf"
	"io"
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
)

var (
	errAreaOverlap  = &kernel.Error{Module: "vmm", Message: "area overlaps an existing mapping"}
	errInvalidELF   = &kernel.Error{Module: "vmm", Message: "invalid ELF image"}
	errELFPlacement = &kernel.Error{Module: "vmm", Message: "ELF segment outside of user space"}
)

// MemorySet is an address space: a page table plus the areas mapped into
// it. Every address space maps the trampoline page at Trampoline.
type MemorySet struct {
	pageTable  *PageTable
	areas      []*MapArea
	trampoline mm.PhysPageNum
}

// NewBare returns an address space with an empty page table and the
// trampoline mapped.
func NewBare(alloc *pmm.FrameAllocator, trampoline mm.PhysPageNum) *MemorySet {
	ms := &MemorySet{
		pageTable:  NewPageTable(alloc),
		trampoline: trampoline,
	}
	ms.pageTable.Map(Trampoline.Floor(), trampoline, mm.PTERead|mm.PTEExec)
	return ms
}

// Token returns the satp value selecting this address space.
func (ms *MemorySet) Token() uint64 { return ms.pageTable.Token() }

// PageTable returns the address space's page table.
func (ms *MemorySet) PageTable() *PageTable { return ms.pageTable }

// Translate returns the leaf entry for vpn.
func (ms *MemorySet) Translate(vpn mm.VirtPageNum) (mm.PageTableEntry, bool) {
	return ms.pageTable.Translate(vpn)
}

// Activate points the hart's MMU at this address space.
func (ms *MemorySet) Activate(h *cpu.Hart) {
	h.WriteCSR(cpu.CSRSatp, ms.Token())
}

func (ms *MemorySet) overlaps(r mm.VPNRange) bool {
	for _, area := range ms.areas {
		if area.vpnRange.Overlaps(r) {
			return true
		}
	}
	return false
}

// push maps area and copies data (if any) into it starting offset bytes
// into the first page.
func (ms *MemorySet) push(area *MapArea, data []byte, offset uint64) *kernel.Error {
	if ms.overlaps(area.vpnRange) || area.vpnRange.Contains(Trampoline.Floor()) {
		return errAreaOverlap
	}

	area.mapAll(ms.pageTable)
	if len(data) != 0 {
		area.copyData(ms.pageTable, data, offset)
	}
	ms.areas = append(ms.areas, area)
	return nil
}

// InsertFramedArea maps a new framed area covering [start, end).
func (ms *MemorySet) InsertFramedArea(start, end mm.VirtAddr, perm MapPermission) *kernel.Error {
	return ms.push(NewMapArea(start, end, MapFramed, perm), nil, 0)
}

// RemoveAreaWithStartVPN unmaps and drops the area starting at vpn, if any.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn mm.VirtPageNum) {
	for i, area := range ms.areas {
		if area.vpnRange.Start == vpn {
			area.unmapAll(ms.pageTable)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return
		}
	}
}

func (ms *MemorySet) findArea(start mm.VirtAddr) *MapArea {
	for _, area := range ms.areas {
		if area.vpnRange.Start == start.Floor() {
			return area
		}
	}
	return nil
}

// ShrinkTo moves the end of the area starting at start down to newEnd. It
// returns false if no such area exists.
func (ms *MemorySet) ShrinkTo(start, newEnd mm.VirtAddr) bool {
	area := ms.findArea(start)
	if area == nil || newEnd.Ceil() < area.vpnRange.Start {
		return false
	}
	if newEnd.Ceil() < area.vpnRange.End {
		area.shrinkTo(ms.pageTable, newEnd.Ceil())
	}
	return true
}

// AppendTo grows the area starting at start up to newEnd. It returns false
// if no such area exists or the growth would collide with another area.
func (ms *MemorySet) AppendTo(start, newEnd mm.VirtAddr) bool {
	area := ms.findArea(start)
	if area == nil {
		return false
	}

	grown := mm.VPNRange{Start: area.vpnRange.End, End: newEnd.Ceil()}
	if grown.End <= grown.Start {
		return true
	}
	if ms.overlaps(grown) || grown.End > TrapContextBase.Floor() {
		return false
	}
	area.appendTo(ms.pageTable, grown.End)
	return true
}

// RecycleDataPages unmaps every area and releases its frames. The page
// table itself survives until Destroy.
func (ms *MemorySet) RecycleDataPages() {
	for _, area := range ms.areas {
		area.unmapAll(ms.pageTable)
	}
	ms.areas = nil
}

// Destroy releases all data frames and page table frames.
func (ms *MemorySet) Destroy() {
	ms.RecycleDataPages()
	ms.pageTable.Free()
}

// NewKernel builds the kernel address space: every image section and the
// rest of physical memory identity mapped, plus the trampoline.
func NewKernel(alloc *pmm.FrameAllocator, layout KernelLayout) *MemorySet {
	ms := NewBare(alloc, layout.Strampoline.Floor())

	sections := []struct {
		name       string
		start, end mm.PhysAddr
		perm       MapPermission
	}{
		{".text", layout.Stext, layout.Etext, PermR | PermX},
		{".rodata", layout.Srodata, layout.Erodata, PermR},
		{".data", layout.Sdata, layout.Edata, PermR | PermW},
		{".bss", layout.SbssWithStack, layout.Ebss, PermR | PermW},
		{"physical memory", layout.Ekernel, layout.MemoryEnd, PermR | PermW},
	}

	for _, s := range sections {
		kfmt.Printf("[vmm] mapping %s [%#x, %#x)\n", s.name, uint64(s.start), uint64(s.end))
		area := NewMapArea(mm.VirtAddr(s.start), mm.VirtAddr(s.end), MapIdentical, s.perm)
		if err := ms.push(area, nil, 0); err != nil {
			kfmt.Panic(err)
		}
	}
	return ms
}

// FromELF builds a user address space from an ELF image. Every PT_LOAD
// segment is mapped with its own permissions plus PermU. It returns the
// address space, the base of the user stack region and the entry point. An
// empty heap area starts one guard page above the highest segment; the
// stacks begin past the heap window.
func FromELF(alloc *pmm.FrameAllocator, trampoline mm.PhysPageNum, image []byte) (*MemorySet, mm.VirtAddr, uint64, *kernel.Error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, 0, 0, errInvalidELF
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV || f.Type != elf.ET_EXEC {
		return nil, 0, 0, errInvalidELF
	}

	ms := NewBare(alloc, trampoline)
	var maxEnd mm.VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		start := mm.VirtAddr(prog.Vaddr)
		end := start + mm.VirtAddr(prog.Memsz)
		if prog.Filesz > prog.Memsz || end < start || end > userSpaceEnd {
			ms.Destroy()
			return nil, 0, 0, errELFPlacement
		}

		perm := PermU
		if prog.Flags&elf.PF_R != 0 {
			perm |= PermR
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PermW
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PermX
		}

		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			ms.Destroy()
			return nil, 0, 0, errInvalidELF
		}

		area := NewMapArea(start, end, MapFramed, perm)
		if err := ms.push(area, data, start.PageOffset()); err != nil {
			ms.Destroy()
			return nil, 0, 0, err
		}
		if area.vpnRange.End > maxEnd {
			maxEnd = area.vpnRange.End
		}
	}

	if maxEnd == 0 {
		ms.Destroy()
		return nil, 0, 0, errInvalidELF
	}

	heapBottom := maxEnd.Addr() + mm.PageSize
	ustackBase := heapBottom + UserHeapSize + mm.PageSize
	ms.push(NewMapArea(heapBottom, heapBottom, MapFramed, PermR|PermW|PermU), nil, 0)

	return ms, ustackBase, f.Entry, nil
}

// FromExistedUser returns a copy of a user address space: the same areas
// backed by new frames holding the same bytes.
func FromExistedUser(user *MemorySet) *MemorySet {
	ms := NewBare(user.pageTable.alloc, user.trampoline)
	mem := user.pageTable.mem

	for _, area := range user.areas {
		clone := area.cloneLayout()
		ms.push(clone, nil, 0)
		for vpn := area.vpnRange.Start; vpn < area.vpnRange.End; vpn++ {
			src, _ := user.Translate(vpn)
			dst, _ := ms.Translate(vpn)
			copy(mem.Page(dst.PPN()), mem.Page(src.PPN()))
		}
	}
	return ms
}
