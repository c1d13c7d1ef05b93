package mm

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// PhysMemory models the machine's RAM: a contiguous region starting at a
// physical base address. The backing store is a word array so 8-byte fields
// inside a page can be viewed in place through typed pointers. Multi-byte
// values are stored little-endian, matching a RISC-V machine; typed views
// assume a little-endian host.
type PhysMemory struct {
	start PhysAddr
	words []uint64
	bytes []byte
}

// NewPhysMemory allocates size bytes of zeroed RAM starting at start. Both
// start and size must be page aligned.
func NewPhysMemory(start PhysAddr, size uint64) *PhysMemory {
	if !start.Aligned() || size%PageSize != 0 || size == 0 {
		panic(fmt.Sprintf("mm: unaligned memory region %s+%#x", start, size))
	}

	words := make([]uint64, size/8)
	return &PhysMemory{
		start: start,
		words: words,
		bytes: unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size),
	}
}

// Start returns the first physical address backed by RAM.
func (m *PhysMemory) Start() PhysAddr { return m.start }

// End returns the first physical address past the end of RAM.
func (m *PhysMemory) End() PhysAddr { return m.start + PhysAddr(len(m.bytes)) }

// Contains returns true if [pa, pa+n) lies entirely inside RAM.
func (m *PhysMemory) Contains(pa PhysAddr, n uint64) bool {
	if pa < m.start {
		return false
	}
	off := uint64(pa - m.start)
	return off <= uint64(len(m.bytes)) && n <= uint64(len(m.bytes))-off
}

// Bytes returns a slice aliasing [pa, pa+n). It panics if the region is not
// backed by RAM.
func (m *PhysMemory) Bytes(pa PhysAddr, n uint64) []byte {
	if !m.Contains(pa, n) {
		panic(fmt.Sprintf("mm: physical access %s+%#x outside of RAM", pa, n))
	}
	off := uint64(pa - m.start)
	return m.bytes[off : off+n : off+n]
}

// Page returns the contents of a frame.
func (m *PhysMemory) Page(ppn PhysPageNum) []byte {
	return m.Bytes(ppn.Addr(), PageSize)
}

// PTEs returns the frame viewed as a page table.
func (m *PhysMemory) PTEs(ppn PhysPageNum) []PageTableEntry {
	return unsafe.Slice((*PageTableEntry)(m.Pointer(ppn.Addr())), EntriesPerTable)
}

// Pointer returns an unsafe pointer to the 8-byte aligned physical address
// pa, for overlaying typed structures on RAM.
func (m *PhysMemory) Pointer(pa PhysAddr) unsafe.Pointer {
	if uint64(pa)%8 != 0 || !m.Contains(pa, 8) {
		panic(fmt.Sprintf("mm: cannot take pointer to %s", pa))
	}
	return unsafe.Pointer(&m.words[uint64(pa-m.start)/8])
}

// Zero clears a frame.
func (m *PhysMemory) Zero(ppn PhysPageNum) {
	clear(m.Page(ppn))
}

// Read loads an n-byte little-endian value (n in 1, 2, 4, 8).
func (m *PhysMemory) Read(pa PhysAddr, n int) uint64 {
	b := m.Bytes(pa, uint64(n))
	switch n {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// Write stores the low n bytes of v little-endian (n in 1, 2, 4, 8).
func (m *PhysMemory) Write(pa PhysAddr, n int, v uint64) {
	b := m.Bytes(pa, uint64(n))
	switch n {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
