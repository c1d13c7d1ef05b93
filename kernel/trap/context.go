// Package trap defines the per-thread trap context page and the trampoline
// code that moves a hart between user and kernel mode.
package trap

import (
	"rvos/kernel/cpu"
	"rvos/kernel/mm"
	"unsafe"
)

// Context is the register file saved when a thread traps into the kernel.
// It lives at the start of the thread's trap-context page; the trampoline
// addresses its fields by their byte offsets.
type Context struct {
	// X holds the integer registers x0..x31.
	X [32]uint64

	Sstatus uint64
	Sepc    uint64

	// KernelSatp, KernelSp and TrapHandler are read by the trampoline on
	// entry and never changed by user code.
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

// Field offsets used by the trampoline.
var (
	sstatusOffset     = int64(unsafe.Offsetof(Context{}.Sstatus))
	sepcOffset        = int64(unsafe.Offsetof(Context{}.Sepc))
	kernelSatpOffset  = int64(unsafe.Offsetof(Context{}.KernelSatp))
	kernelSpOffset    = int64(unsafe.Offsetof(Context{}.KernelSp))
	trapHandlerOffset = int64(unsafe.Offsetof(Context{}.TrapHandler))
)

func regOffset(r cpu.Reg) int64 { return int64(r) * 8 }

// At returns the trap context stored in the frame ppn.
func At(mem *mm.PhysMemory, ppn mm.PhysPageNum) *Context {
	return (*Context)(mem.Pointer(ppn.Addr()))
}

// AppInitContext returns the context that makes a thread start executing
// entry in U-mode with the given user stack pointer.
func AppInitContext(entry, sp, kernelSatp, kernelSp, trapHandler uint64) Context {
	// Sstatus stays zero: SPP clear makes sret drop to U-mode.
	cx := Context{
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		TrapHandler: trapHandler,
	}
	cx.SetSp(sp)
	return cx
}

// SetSp sets the saved user stack pointer.
func (cx *Context) SetSp(sp uint64) { cx.X[cpu.SP] = sp }

// Reg returns a saved register.
func (cx *Context) Reg(r cpu.Reg) uint64 { return cx.X[r] }
