package vmm

import (
	"encoding/binary"
	"rvos/kernel"
	"rvos/kernel/mm"
)

// ErrBadAddress is returned when a user pointer does not translate to a
// user-accessible page with the required permission.
var ErrBadAddress = &kernel.Error{Module: "vmm", Message: "bad user address"}

// maxUserString bounds TranslatedString so that an unterminated string
// cannot walk the whole address space.
const maxUserString = 4096

// UserBuffer is a user virtual range viewed as a list of physical byte
// slices, one per touched page.
type UserBuffer struct {
	Buffers [][]byte
}

// Len returns the total number of bytes in the buffer.
func (b UserBuffer) Len() int {
	n := 0
	for _, buf := range b.Buffers {
		n += len(buf)
	}
	return n
}

// CopyFrom copies data into the buffer and returns the number of bytes
// copied.
func (b UserBuffer) CopyFrom(data []byte) int {
	n := 0
	for _, buf := range b.Buffers {
		if len(data) == 0 {
			break
		}
		c := copy(buf, data)
		data = data[c:]
		n += c
	}
	return n
}

// Bytes returns a copy of the buffer contents.
func (b UserBuffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, buf := range b.Buffers {
		out = append(out, buf...)
	}
	return out
}

// userPage returns the leaf entry for the page holding va in the address
// space selected by token, provided it is valid, user accessible and
// carries the requested permission.
func userPage(pt *PageTable, va mm.VirtAddr, write bool) (mm.PageTableEntry, *kernel.Error) {
	if !va.Canonical() {
		return 0, ErrBadAddress
	}
	pte, ok := pt.Translate(va.Floor())
	if !ok || !pte.User() || !pte.Readable() || (write && !pte.Writable()) {
		return 0, ErrBadAddress
	}
	return pte, nil
}

// TranslatedByteBuffer returns the physical slices backing the user range
// [ptr, ptr+length) in the address space selected by token.
func TranslatedByteBuffer(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, length uint64, write bool) (UserBuffer, *kernel.Error) {
	var (
		pt  = FromToken(mem, token)
		buf UserBuffer
		end = ptr + mm.VirtAddr(length)
	)
	if end < ptr {
		return buf, ErrBadAddress
	}

	for va := ptr; va < end; {
		pte, err := userPage(pt, va, write)
		if err != nil {
			return UserBuffer{}, err
		}

		next := (va.Floor() + 1).Addr()
		if next > end || next == 0 {
			next = end
		}
		page := mem.Page(pte.PPN())
		buf.Buffers = append(buf.Buffers, page[va.PageOffset():va.PageOffset()+uint64(next-va)])
		va = next
	}
	return buf, nil
}

// TranslatedString reads a NUL-terminated string from user memory.
func TranslatedString(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr) (string, *kernel.Error) {
	pt := FromToken(mem, token)
	var out []byte
	for va := ptr; len(out) < maxUserString; va++ {
		pte, err := userPage(pt, va, false)
		if err != nil {
			return "", err
		}
		ch := mem.Page(pte.PPN())[va.PageOffset()]
		if ch == 0 {
			return string(out), nil
		}
		out = append(out, ch)
	}
	return "", ErrBadAddress
}

// CopyIn reads len(dst) bytes of user memory at ptr.
func CopyIn(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, dst []byte) *kernel.Error {
	buf, err := TranslatedByteBuffer(mem, token, ptr, uint64(len(dst)), false)
	if err != nil {
		return err
	}
	for _, b := range buf.Buffers {
		dst = dst[copy(dst, b):]
	}
	return nil
}

// CopyOut writes src to user memory at ptr. The target pages must be
// writable.
func CopyOut(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, src []byte) *kernel.Error {
	buf, err := TranslatedByteBuffer(mem, token, ptr, uint64(len(src)), true)
	if err != nil {
		return err
	}
	buf.CopyFrom(src)
	return nil
}

// ReadUint64 reads a little-endian 64-bit value from user memory.
func ReadUint64(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr) (uint64, *kernel.Error) {
	var raw [8]byte
	if err := CopyIn(mem, token, ptr, raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw[:]), nil
}

// WriteUint64 stores a little-endian 64-bit value into user memory.
func WriteUint64(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, v uint64) *kernel.Error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return CopyOut(mem, token, ptr, raw[:])
}

// WriteInt32 stores a little-endian 32-bit value into user memory.
func WriteInt32(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, v int32) *kernel.Error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	return CopyOut(mem, token, ptr, raw[:])
}
