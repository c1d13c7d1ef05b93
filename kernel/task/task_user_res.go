package task

import (
	"rvos/kernel"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
)

// TaskUserRes is the per-thread slice of a process address space: the tid,
// the user stack and the trap-context page.
type TaskUserRes struct {
	tid        int
	ustackBase mm.VirtAddr
	process    *Process
}

func newTaskUserRes(p *Process, ustackBase mm.VirtAddr) *TaskUserRes {
	return &TaskUserRes{
		tid:        p.tids.Alloc(),
		ustackBase: ustackBase,
		process:    p,
	}
}

// Tid returns the thread id within its process.
func (r *TaskUserRes) Tid() int { return r.tid }

// allocUserRes maps the user stack and trap-context page of the thread.
func (r *TaskUserRes) allocUserRes() *kernel.Error {
	ms := r.process.memorySet

	bottom, top := vmm.UserStackPosition(r.ustackBase, r.tid)
	if err := ms.InsertFramedArea(bottom, top, vmm.PermR|vmm.PermW|vmm.PermU); err != nil {
		return err
	}

	cx := vmm.TrapContextPosition(r.tid)
	if err := ms.InsertFramedArea(cx, cx+mm.PageSize, vmm.PermR|vmm.PermW); err != nil {
		ms.RemoveAreaWithStartVPN(bottom.Floor())
		return err
	}
	return nil
}

func (r *TaskUserRes) deallocUserRes() {
	ms := r.process.memorySet
	bottom, _ := vmm.UserStackPosition(r.ustackBase, r.tid)
	ms.RemoveAreaWithStartVPN(bottom.Floor())
	ms.RemoveAreaWithStartVPN(vmm.TrapContextPosition(r.tid).Floor())
}

// release unmaps the thread's areas and returns its tid.
func (r *TaskUserRes) release() {
	r.deallocUserRes()
	r.process.tids.Dealloc(r.tid)
}

// TrapContextPPN returns the frame holding the thread's trap context.
func (r *TaskUserRes) TrapContextPPN() mm.PhysPageNum {
	pte, _ := r.process.memorySet.Translate(vmm.TrapContextPosition(r.tid).Floor())
	return pte.PPN()
}

// UserStackTop returns the initial user stack pointer.
func (r *TaskUserRes) UserStackTop() mm.VirtAddr {
	_, top := vmm.UserStackPosition(r.ustackBase, r.tid)
	return top
}
