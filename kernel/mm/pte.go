package mm

// PTEFlags holds the low 8 bits of a page table entry.
type PTEFlags uint8

const (
	// PTEValid marks the entry as present.
	PTEValid PTEFlags = 1 << iota

	// PTERead allows loads through the mapping.
	PTERead

	// PTEWrite allows stores through the mapping.
	PTEWrite

	// PTEExec allows instruction fetches through the mapping.
	PTEExec

	// PTEUser makes the mapping accessible from user mode and, since SUM
	// is never set, inaccessible from supervisor mode.
	PTEUser

	// PTEGlobal marks mappings present in every address space.
	PTEGlobal

	// PTEAccessed is set by the hart on first access.
	PTEAccessed

	// PTEDirty is set by the hart on first store.
	PTEDirty
)

const ptePPNMask = (1 << PPNWidth) - 1

// PageTableEntry is an Sv39 page table entry: the physical page number lives
// in bits 10..53 and the flags in bits 0..7.
type PageTableEntry uint64

// NewPTE builds an entry pointing to ppn with the supplied flags.
func NewPTE(ppn PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry((uint64(ppn)&ptePPNMask)<<10 | uint64(flags))
}

// PPN returns the physical page number referenced by the entry.
func (pte PageTableEntry) PPN() PhysPageNum {
	return PhysPageNum((uint64(pte) >> 10) & ptePPNMask)
}

// Flags returns the flag bits of the entry.
func (pte PageTableEntry) Flags() PTEFlags { return PTEFlags(pte) }

// HasFlags returns true if all of the supplied flags are set.
func (pte PageTableEntry) HasFlags(flags PTEFlags) bool { return pte.Flags()&flags == flags }

// IsValid returns true if the entry is present.
func (pte PageTableEntry) IsValid() bool { return pte.HasFlags(PTEValid) }

// IsLeaf returns true for valid entries that map memory instead of pointing
// to a next-level table.
func (pte PageTableEntry) IsLeaf() bool {
	return pte.IsValid() && pte.Flags()&(PTERead|PTEWrite|PTEExec) != 0
}

// Readable returns true if loads are allowed.
func (pte PageTableEntry) Readable() bool { return pte.HasFlags(PTERead) }

// Writable returns true if stores are allowed.
func (pte PageTableEntry) Writable() bool { return pte.HasFlags(PTEWrite) }

// Executable returns true if fetches are allowed.
func (pte PageTableEntry) Executable() bool { return pte.HasFlags(PTEExec) }

// User returns true if the mapping is user accessible.
func (pte PageTableEntry) User() bool { return pte.HasFlags(PTEUser) }

// SetFlags sets the supplied flags.
func (pte *PageTableEntry) SetFlags(flags PTEFlags) { *pte |= PageTableEntry(flags) }
