package task

import (
	"rvos/kernel/mm"
	"rvos/kernel/trap"
)

// Status is the scheduling state of a thread.
type Status uint8

const (
	// Ready threads wait in the ready queue.
	Ready Status = iota

	// Running is the state of the thread in the processor's current slot.
	Running

	// Blocked threads wait for a wakeup from a timer or a mutex.
	Blocked
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	default:
		return "Blocked"
	}
}

// Context is the parked kernel flow of a thread. A thread's flow is a
// goroutine that only runs while it holds the processor.
type Context struct {
	resume  chan bool
	started bool
}

// Task is a thread control block.
type Task struct {
	process *Process
	tid     int
	kstack  *KernelStack

	// res is nil once the thread has exited.
	res       *TaskUserRes
	trapCxPPN mm.PhysPageNum

	status   Status
	exited   bool
	exitCode int32

	ctx Context
}

func newTask(p *Process, ustackBase mm.VirtAddr, allocUserRes bool) (*Task, bool) {
	res := newTaskUserRes(p, ustackBase)
	if allocUserRes {
		if err := res.allocUserRes(); err != nil {
			p.tids.Dealloc(res.tid)
			return nil, false
		}
	}

	t := &Task{
		process:   p,
		tid:       res.tid,
		kstack:    p.sys.allocKernelStack(),
		res:       res,
		trapCxPPN: res.TrapContextPPN(),
		status:    Ready,
		ctx:       Context{resume: make(chan bool, 1)},
	}
	return t, true
}

// Process returns the process the thread belongs to.
func (t *Task) Process() *Process { return t.process }

// Tid returns the thread id.
func (t *Task) Tid() int { return t.tid }

// Status returns the scheduling state.
func (t *Task) Status() Status { return t.status }

// KernelStack returns the thread's kernel stack.
func (t *Task) KernelStack() *KernelStack { return t.kstack }

// TrapContext returns the thread's saved user registers.
func (t *Task) TrapContext() *trap.Context {
	return trap.At(t.process.sys.mem, t.trapCxPPN)
}

// UserToken returns the satp value of the thread's address space.
func (t *Task) UserToken() uint64 { return t.process.memorySet.Token() }

// ExitCode returns the exit code of an exited thread.
func (t *Task) ExitCode() (int32, bool) { return t.exitCode, t.exited }
