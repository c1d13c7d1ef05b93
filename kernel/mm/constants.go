package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = 1 << PageShift

	// PAWidth is the number of meaningful physical address bits under Sv39.
	PAWidth = 56

	// VAWidth is the number of meaningful virtual address bits under Sv39.
	// Bits 63..39 of a canonical address replicate bit 38.
	VAWidth = 39

	// PPNWidth and VPNWidth are the page-number widths derived from the
	// address widths.
	PPNWidth = PAWidth - PageShift
	VPNWidth = VAWidth - PageShift

	// PageTableLevels is the depth of an Sv39 translation.
	PageTableLevels = 3

	// EntriesPerTable is the number of 8-byte entries in one table page.
	EntriesPerTable = PageSize / 8

	// MemoryStart is the physical address where RAM begins.
	MemoryStart = PhysAddr(0x80000000)
)
