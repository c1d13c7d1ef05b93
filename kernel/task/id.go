package task

import (
	"rvos/kernel"
	"rvos/kernel/kfmt"
	"rvos/kernel/sync"
)

var (
	errIDNotAllocated = &kernel.Error{Module: "task", Message: "id has not been allocated"}
	errIDDoubleFree   = &kernel.Error{Module: "task", Message: "id has already been released"}
)

// RecycleAllocator hands out small integer ids, preferring the most recently
// released one.
type RecycleAllocator struct {
	lock     sync.UPLock
	current  int
	recycled []int
}

// Alloc returns an unused id.
func (a *RecycleAllocator) Alloc() int {
	a.lock.Acquire()
	defer a.lock.Release()

	if n := len(a.recycled); n != 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id
	}
	a.current++
	return a.current - 1
}

// Dealloc returns id to the allocator. Releasing an id twice or one that was
// never handed out halts the kernel.
func (a *RecycleAllocator) Dealloc(id int) {
	a.lock.Acquire()
	if id < 0 || id >= a.current {
		a.lock.Release()
		kfmt.Panic(errIDNotAllocated)
		return
	}
	for _, r := range a.recycled {
		if r == id {
			a.lock.Release()
			kfmt.Panic(errIDDoubleFree)
			return
		}
	}
	a.recycled = append(a.recycled, id)
	a.lock.Release()
}

// InUse returns the number of ids currently handed out.
func (a *RecycleAllocator) InUse() int {
	return a.current - len(a.recycled)
}
