package task

import (
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
)

// KernelStack is a kernel stack mapped in the kernel address space. Every
// thread owns one from creation until it is collected.
type KernelStack struct {
	sys *System
	id  int
}

func (sys *System) allocKernelStack() *KernelStack {
	id := sys.kstacks.Alloc()
	bottom, top := vmm.KernelStackPosition(id)
	if err := sys.kernelSpace.InsertFramedArea(bottom, top, vmm.PermR|vmm.PermW); err != nil {
		kfmt.Panic(err)
	}
	return &KernelStack{sys: sys, id: id}
}

// ID returns the stack slot.
func (ks *KernelStack) ID() int { return ks.id }

// Top returns the initial stack pointer.
func (ks *KernelStack) Top() mm.VirtAddr {
	_, top := vmm.KernelStackPosition(ks.id)
	return top
}

func (ks *KernelStack) release() {
	bottom, _ := vmm.KernelStackPosition(ks.id)
	ks.sys.kernelSpace.RemoveAreaWithStartVPN(bottom.Floor())
	ks.sys.kstacks.Dealloc(ks.id)
}
