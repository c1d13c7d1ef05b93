// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"rvos/kernel"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/sync"
)

var (
	errOutOfMemory  = &kernel.Error{Module: "pmm", Message: "out of physical frames"}
	errNotAllocated = &kernel.Error{Module: "pmm", Message: "frame has not been allocated"}
	errDoubleFree   = &kernel.Error{Module: "pmm", Message: "frame has already been released"}
)

// FrameAllocator hands out physical frames from the range [start, end). It
// keeps a watermark for frames never handed out and a LIFO stack of frames
// returned by their owners; recycled frames are always preferred.
type FrameAllocator struct {
	lock sync.UPLock

	mem        *mm.PhysMemory
	start      mm.PhysPageNum
	current    mm.PhysPageNum
	end        mm.PhysPageNum
	recycled   []mm.PhysPageNum
	isRecycled map[mm.PhysPageNum]struct{}
}

// NewFrameAllocator returns an allocator managing the frames in [start, end)
// of mem.
func NewFrameAllocator(mem *mm.PhysMemory, start, end mm.PhysPageNum) *FrameAllocator {
	alloc := &FrameAllocator{
		mem:        mem,
		start:      start,
		current:    start,
		end:        end,
		isRecycled: make(map[mm.PhysPageNum]struct{}),
	}

	kfmt.Printf("[pmm] frame allocator range: [%#x - %#x], %d frames\n",
		uint64(start.Addr()), uint64(end.Addr())-1, uint64(end-start))
	return alloc
}

// Memory returns the RAM the allocator carves frames from.
func (alloc *FrameAllocator) Memory() *mm.PhysMemory {
	return alloc.mem
}

func (alloc *FrameAllocator) allocFrame() (mm.PhysPageNum, bool) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if n := len(alloc.recycled); n != 0 {
		ppn := alloc.recycled[n-1]
		alloc.recycled = alloc.recycled[:n-1]
		delete(alloc.isRecycled, ppn)
		return ppn, true
	}

	if alloc.current == alloc.end {
		return 0, false
	}
	alloc.current++
	return alloc.current - 1, true
}

func (alloc *FrameAllocator) freeFrame(ppn mm.PhysPageNum) {
	alloc.lock.Acquire()

	if ppn < alloc.start || ppn >= alloc.current {
		alloc.lock.Release()
		kfmt.Panic(errNotAllocated)
		return
	}
	if _, found := alloc.isRecycled[ppn]; found {
		alloc.lock.Release()
		kfmt.Panic(errDoubleFree)
		return
	}

	alloc.recycled = append(alloc.recycled, ppn)
	alloc.isRecycled[ppn] = struct{}{}
	alloc.lock.Release()
}

// Alloc reserves a zero-filled frame. It returns false when no frames are
// left.
func (alloc *FrameAllocator) Alloc() (*FrameTracker, bool) {
	ppn, ok := alloc.allocFrame()
	if !ok {
		return nil, false
	}

	alloc.mem.Zero(ppn)
	return &FrameTracker{PPN: ppn, alloc: alloc}, true
}

// MustAlloc is like Alloc but halts the kernel when memory is exhausted.
func (alloc *FrameAllocator) MustAlloc() *FrameTracker {
	frame, ok := alloc.Alloc()
	if !ok {
		kfmt.Panic(errOutOfMemory)
	}
	return frame
}

// FreeFrames returns the number of frames that can still be allocated.
func (alloc *FrameAllocator) FreeFrames() uint64 {
	return uint64(alloc.end-alloc.current) + uint64(len(alloc.recycled))
}

// FrameTracker owns exactly one allocated frame. The frame returns to the
// allocator when Release is called; a tracker must be released only once.
type FrameTracker struct {
	PPN mm.PhysPageNum

	alloc *FrameAllocator
}

// Bytes returns the frame contents.
func (f *FrameTracker) Bytes() []byte {
	return f.alloc.mem.Page(f.PPN)
}

// Release hands the frame back to its allocator.
func (f *FrameTracker) Release() {
	f.alloc.freeFrame(f.PPN)
}
