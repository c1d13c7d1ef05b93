package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	ehdrSize = 64
	phdrSize = 56
)

// Segment is a loadable program segment.
type Segment struct {
	Vaddr uint64
	Flags elf.ProgFlag
	Data  []byte

	// Memsz is the in-memory size of the segment. Bytes past len(Data)
	// are zero filled by the loader. A Memsz smaller than len(Data) is
	// treated as len(Data).
	Memsz uint64
}

// Builder assembles a statically linked ELF64 RISC-V executable out of
// loadable segments.
type Builder struct {
	entry    uint64
	segments []Segment
}

// NewBuilder returns a Builder for an image starting execution at entry.
func NewBuilder(entry uint64) *Builder {
	return &Builder{entry: entry}
}

// AddSegment appends a PT_LOAD segment.
func (b *Builder) AddSegment(seg Segment) *Builder {
	if seg.Memsz < uint64(len(seg.Data)) {
		seg.Memsz = uint64(len(seg.Data))
	}
	b.segments = append(b.segments, seg)
	return b
}

// Build returns the encoded image.
func (b *Builder) Build() []byte {
	var (
		buf    bytes.Buffer
		phnum  = len(b.segments)
		offset = uint64(ehdrSize + phnum*phdrSize)
	)

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     b.entry,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(phnum),
		Shentsize: 64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&buf, binary.LittleEndian, &hdr)

	for _, seg := range b.segments {
		prog := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(seg.Flags),
			Off:    offset,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  seg.Memsz,
			Align:  8,
		}
		binary.Write(&buf, binary.LittleEndian, &prog)
		offset += uint64(len(seg.Data))
	}

	for _, seg := range b.segments {
		buf.Write(seg.Data)
	}
	return buf.Bytes()
}
