package task

import (
	"rvos/kernel/fs"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sync"
	"rvos/kernel/trap"
)

// noParent marks the root process.
const noParent = -1

// Process is a process control block. Relations to other processes are
// stored as pids and resolved through the System.
type Process struct {
	sys *System
	pid int

	// lock guards the descriptor table and the heap break.
	lock sync.UPLock

	zombie   bool
	exitCode int32

	memorySet *vmm.MemorySet
	parent    int
	children  []int
	fdTable   []*fs.Handle

	// tasks is indexed by tid; exited and joined threads leave nil slots.
	tasks []*Task
	tids  RecycleAllocator

	ustackBase mm.VirtAddr
	heapBottom mm.VirtAddr
	programBrk mm.VirtAddr

	signals       SignalFlags
	signalMask    SignalFlags
	signalActions SignalActions
	handlingSig   int
	killed        bool
	frozen        bool
	trapCxBackup  *trap.Context

	mutexes []sync.Mutex
}

func (sys *System) newProcessControlBlock(ms *vmm.MemorySet, ustackBase mm.VirtAddr, parent int) *Process {
	heapBottom := vmm.HeapBase(ustackBase)
	return &Process{
		sys:           sys,
		pid:           sys.pids.Alloc(),
		memorySet:     ms,
		parent:        parent,
		ustackBase:    ustackBase,
		heapBottom:    heapBottom,
		programBrk:    heapBottom,
		signalActions: defaultSignalActions(),
		handlingSig:   -1,
	}
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// Parent returns the parent pid, or -1 for the root process.
func (p *Process) Parent() int { return p.parent }

// Children returns the pids of the process's children.
func (p *Process) Children() []int { return append([]int(nil), p.children...) }

// IsZombie returns true once the main thread has exited.
func (p *Process) IsZombie() bool { return p.zombie }

// ExitCode returns the exit code of a zombie.
func (p *Process) ExitCode() int32 { return p.exitCode }

// MemorySet returns the process address space.
func (p *Process) MemorySet() *vmm.MemorySet { return p.memorySet }

// UserToken returns the satp value of the process address space.
func (p *Process) UserToken() uint64 { return p.memorySet.Token() }

// Task returns the thread with the given tid, or nil.
func (p *Process) Task(tid int) *Task {
	if tid < 0 || tid >= len(p.tasks) {
		return nil
	}
	return p.tasks[tid]
}

// ThreadCount returns the number of occupied thread slots.
func (p *Process) ThreadCount() int {
	n := 0
	for _, t := range p.tasks {
		if t != nil {
			n++
		}
	}
	return n
}

// Signals returns the pending signal set.
func (p *Process) Signals() SignalFlags { return p.signals }

// SignalAction returns the installed action for signum.
func (p *Process) SignalAction(signum int) SignalAction { return p.signalActions[signum] }

// Killed returns true once the process has received a kill signal.
func (p *Process) Killed() bool { return p.killed }

// Frozen returns true while the process is stopped.
func (p *Process) Frozen() bool { return p.frozen }

// AllocFd installs h in the lowest free descriptor slot.
func (p *Process) AllocFd(h *fs.Handle) int {
	p.lock.Acquire()
	defer p.lock.Release()

	for fd, slot := range p.fdTable {
		if slot == nil {
			p.fdTable[fd] = h
			return fd
		}
	}
	p.fdTable = append(p.fdTable, h)
	return len(p.fdTable) - 1
}

// File returns the handle installed at fd, or nil.
func (p *Process) File(fd int) *fs.Handle {
	p.lock.Acquire()
	defer p.lock.Release()

	return p.fileLocked(fd)
}

func (p *Process) fileLocked(fd int) *fs.Handle {
	if fd < 0 || fd >= len(p.fdTable) {
		return nil
	}
	return p.fdTable[fd]
}

// CloseFd releases the handle at fd. It returns false if fd is not open.
func (p *Process) CloseFd(fd int) bool {
	p.lock.Acquire()
	h := p.fileLocked(fd)
	if h == nil {
		p.lock.Release()
		return false
	}
	p.fdTable[fd] = nil
	p.lock.Release()

	h.Release()
	return true
}

func (p *Process) releaseFdTable() {
	for fd, h := range p.fdTable {
		if h != nil {
			p.fdTable[fd] = nil
			h.Release()
		}
	}
	p.fdTable = nil
}

// ChangeProgramBrk moves the heap break by delta bytes and returns the
// previous break. It fails if the break would leave the heap window or the
// heap cannot grow.
func (p *Process) ChangeProgramBrk(delta int64) (mm.VirtAddr, bool) {
	p.lock.Acquire()
	defer p.lock.Release()

	oldBrk := p.programBrk
	newBrk := int64(p.programBrk) + delta
	if newBrk < int64(p.heapBottom) || newBrk > int64(p.heapBottom+vmm.UserHeapSize) {
		return 0, false
	}

	var ok bool
	if delta < 0 {
		ok = p.memorySet.ShrinkTo(p.heapBottom, mm.VirtAddr(newBrk))
	} else {
		ok = p.memorySet.AppendTo(p.heapBottom, mm.VirtAddr(newBrk))
	}
	if !ok {
		return 0, false
	}
	p.programBrk = mm.VirtAddr(newBrk)
	return oldBrk, true
}

// Mutex returns the process mutex with the given id, or nil.
func (p *Process) Mutex(id int) sync.Mutex {
	if id < 0 || id >= len(p.mutexes) {
		return nil
	}
	return p.mutexes[id]
}

// CreateMutex adds a mutex to the process and returns its id.
func (p *Process) CreateMutex(blocking bool) int {
	var m sync.Mutex
	if blocking {
		m = sync.NewMutexBlocking(mutexScheduler{p.sys})
	} else {
		m = sync.NewMutexSpin(mutexScheduler{p.sys})
	}

	for id, slot := range p.mutexes {
		if slot == nil {
			p.mutexes[id] = m
			return id
		}
	}
	p.mutexes = append(p.mutexes, m)
	return len(p.mutexes) - 1
}
