package cpu

import "rvos/kernel/mm"

type accessType uint8

const (
	accessFetch accessType = iota
	accessLoad
	accessStore
)

func (acc accessType) pageFault() Cause {
	switch acc {
	case accessFetch:
		return InstructionPageFault
	case accessLoad:
		return LoadPageFault
	default:
		return StorePageFault
	}
}

func (acc accessType) accessFault() Cause {
	switch acc {
	case accessFetch:
		return InstructionFault
	case accessLoad:
		return LoadFault
	default:
		return StoreFault
	}
}

// translate maps va to a physical address for the given access in the
// current mode. On failure it returns the cause to raise.
func (h *Hart) translate(va uint64, acc accessType) (mm.PhysAddr, Cause, bool) {
	if h.satp>>60 == SatpModeBare {
		return mm.PhysAddr(va), 0, true
	}

	if !mm.VirtAddr(va).Canonical() {
		return 0, acc.pageFault(), false
	}

	tableAddr := mm.PhysPageNum(h.satp & (1<<mm.PPNWidth - 1)).Addr()
	for level := mm.PageTableLevels - 1; level >= 0; level-- {
		shift := mm.PageShift + 9*uint(level)
		pteAddr := tableAddr + mm.PhysAddr(((va>>shift)&(mm.EntriesPerTable-1))*8)
		if !h.mem.Contains(pteAddr, 8) {
			return 0, acc.accessFault(), false
		}

		pte := mm.PageTableEntry(h.mem.Read(pteAddr, 8))
		if !pte.IsValid() || (!pte.Readable() && pte.Writable()) {
			return 0, acc.pageFault(), false
		}

		if !pte.IsLeaf() {
			tableAddr = pte.PPN().Addr()
			continue
		}

		if !h.permitted(pte, acc) {
			return 0, acc.pageFault(), false
		}

		// Superpage leaves must be aligned to their size.
		lowMask := uint64(1)<<shift - 1
		if uint64(pte.PPN().Addr())&lowMask != 0 {
			return 0, acc.pageFault(), false
		}

		update := mm.PTEAccessed
		if acc == accessStore {
			update |= mm.PTEDirty
		}
		if !pte.HasFlags(update) {
			pte.SetFlags(update)
			h.mem.Write(pteAddr, 8, uint64(pte))
		}

		return mm.PhysAddr(uint64(pte.PPN().Addr()) | va&lowMask), 0, true
	}

	return 0, acc.pageFault(), false
}

func (h *Hart) permitted(pte mm.PageTableEntry, acc accessType) bool {
	if h.mode == ModeUser && !pte.User() {
		return false
	}
	if h.mode == ModeSupervisor && pte.User() {
		if acc == accessFetch || h.sstatus&SstatusSUM == 0 {
			return false
		}
	}

	switch acc {
	case accessFetch:
		return pte.Executable()
	case accessLoad:
		return pte.Readable()
	default:
		return pte.Writable()
	}
}

// physRange translates [va, va+size) and raises the matching trap on failure.
// Accesses that straddle a page boundary are split bytewise.
func (h *Hart) physRange(va uint64, size int, acc accessType) ([]mm.PhysAddr, bool) {
	first, cause, ok := h.translate(va, acc)
	if !ok {
		h.trap(cause, va)
		return nil, false
	}

	if mm.VirtAddr(va).PageOffset()+uint64(size) <= mm.PageSize {
		if !h.mem.Contains(first, uint64(size)) {
			h.trap(acc.accessFault(), va)
			return nil, false
		}
		return []mm.PhysAddr{first}, true
	}

	addrs := make([]mm.PhysAddr, size)
	for i := 0; i < size; i++ {
		pa, cause, ok := h.translate(va+uint64(i), acc)
		if !ok {
			h.trap(cause, va+uint64(i))
			return nil, false
		}
		if !h.mem.Contains(pa, 1) {
			h.trap(acc.accessFault(), va+uint64(i))
			return nil, false
		}
		addrs[i] = pa
	}
	return addrs, true
}

func (h *Hart) load(va uint64, size int) (uint64, bool) {
	addrs, ok := h.physRange(va, size, accessLoad)
	if !ok {
		return 0, false
	}
	if len(addrs) == 1 {
		return h.mem.Read(addrs[0], size), true
	}

	var v uint64
	for i, pa := range addrs {
		v |= h.mem.Read(pa, 1) << (8 * uint(i))
	}
	return v, true
}

func (h *Hart) store(va uint64, size int, v uint64) bool {
	addrs, ok := h.physRange(va, size, accessStore)
	if !ok {
		return false
	}
	if len(addrs) == 1 {
		h.mem.Write(addrs[0], size, v)
		return true
	}

	for i, pa := range addrs {
		h.mem.Write(pa, 1, v>>(8*uint(i)))
	}
	return true
}

func (h *Hart) fetch() (uint32, bool) {
	if h.pc&3 != 0 {
		h.trap(InstructionMisaligned, h.pc)
		return 0, false
	}

	addrs, ok := h.physRange(h.pc, 4, accessFetch)
	if !ok {
		return 0, false
	}
	return uint32(h.mem.Read(addrs[0], 4)), true
}
