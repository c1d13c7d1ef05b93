package vmm

import (
	"math"
	"rvos/kernel/mm"
)

const (
	// UserStackSize is the size of every user thread stack.
	UserStackSize = 2 * mm.PageSize

	// UserHeapSize bounds how far the program break may grow above the heap
	// bottom. User stacks start past this window.
	UserHeapSize = 16 << 20

	// KernelStackSize is the size of every kernel stack.
	KernelStackSize = 2 * mm.PageSize

	// Trampoline is the virtual address of the highest page, where the
	// trap entry/exit code is mapped in every address space.
	Trampoline = mm.VirtAddr(math.MaxUint64 - mm.PageSize + 1)

	// TrapContextBase is the trap-context page of thread 0. Thread tid uses
	// the page TrapContextBase - tid*PageSize.
	TrapContextBase = Trampoline - mm.PageSize

	// userSpaceEnd bounds the addresses an ELF image may load at.
	userSpaceEnd = mm.VirtAddr(1 << (mm.VAWidth - 1))
)

// KernelStackPosition returns the [bottom, top) range of the kernel stack
// with the given id in the kernel address space. Stacks are laid out
// downwards from the trampoline with an unmapped guard page between them.
func KernelStackPosition(id int) (bottom, top mm.VirtAddr) {
	top = Trampoline - mm.VirtAddr(uint64(id)*(KernelStackSize+mm.PageSize))
	return top - KernelStackSize, top
}

// TrapContextPosition returns the virtual address of thread tid's trap
// context page.
func TrapContextPosition(tid int) mm.VirtAddr {
	return TrapContextBase - mm.VirtAddr(uint64(tid)*mm.PageSize)
}

// UserStackPosition returns the [bottom, top) range of thread tid's user
// stack given the per-process stack base. Stacks grow upwards by tid with a
// guard page between them and never reach the heap window below the base.
func UserStackPosition(base mm.VirtAddr, tid int) (bottom, top mm.VirtAddr) {
	bottom = base + mm.VirtAddr(uint64(tid)*(mm.PageSize+UserStackSize))
	return bottom, bottom + UserStackSize
}

// HeapBase returns the start of the heap window that lies between the end
// of the program image and the per-thread user stacks. A guard page
// separates the window from the first stack.
func HeapBase(ustackBase mm.VirtAddr) mm.VirtAddr {
	return ustackBase - mm.PageSize - UserHeapSize
}

// KernelLayout describes where the kernel image sections live in physical
// memory. The kernel address space maps them one-to-one.
type KernelLayout struct {
	Stext, Etext        mm.PhysAddr
	Srodata, Erodata    mm.PhysAddr
	Sdata, Edata        mm.PhysAddr
	SbssWithStack, Ebss mm.PhysAddr
	Ekernel             mm.PhysAddr
	MemoryEnd           mm.PhysAddr

	// Strampoline is the page inside .text holding the trampoline code.
	Strampoline mm.PhysAddr

	// TrapHandler and TrapFromKernel are the .text addresses of the kernel
	// trap entry points the trampoline and stvec jump to.
	TrapHandler    mm.PhysAddr
	TrapFromKernel mm.PhysAddr
}

// DefaultKernelLayout returns the section layout of a kernel image loaded at
// the start of RAM extending to memoryEnd.
func DefaultKernelLayout(memoryEnd mm.PhysAddr) KernelLayout {
	base := mm.MemoryStart
	return KernelLayout{
		Stext:          base,
		TrapHandler:    base + 0x100,
		TrapFromKernel: base + 0x200,
		Strampoline:    base + 0x1000,
		Etext:          base + 0x10000,
		Srodata:        base + 0x10000,
		Erodata:        base + 0x14000,
		Sdata:          base + 0x14000,
		Edata:          base + 0x18000,
		SbssWithStack:  base + 0x18000,
		Ebss:           base + 0x28000,
		Ekernel:        base + 0x28000,
		MemoryEnd:      memoryEnd,
	}
}
