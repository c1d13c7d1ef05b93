package task

import (
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/fs"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/trap"
)

var (
	errNoSuchApp     = &kernel.Error{Module: "task", Message: "no such application"}
	errNoUserStack   = &kernel.Error{Module: "task", Message: "cannot map the user stack"}
	errProcessLeak   = &kernel.Error{Module: "task", Message: "zombie process is still referenced"}
	errArgsOverflow  = &kernel.Error{Module: "task", Message: "arguments do not fit on the user stack"}
	errExecUserStack = &kernel.Error{Module: "task", Message: "cannot map the user stack of a new image"}
)

func (sys *System) initTrapContext(t *Task, entry uint64) *trap.Context {
	cx := t.TrapContext()
	*cx = trap.AppInitContext(
		entry,
		uint64(t.res.UserStackTop()),
		sys.KernelToken(),
		uint64(t.kstack.Top()),
		uint64(sys.layout.TrapHandler),
	)
	return cx
}

// NewProcess builds a process from an ELF image and makes its main thread
// ready. The first process created becomes the root of the process tree.
func (sys *System) NewProcess(image []byte) (*Process, *kernel.Error) {
	ms, ustackBase, entry, err := vmm.FromELF(sys.frames, sys.layout.Strampoline.Floor(), image)
	if err != nil {
		return nil, err
	}

	p := sys.newProcessControlBlock(ms, ustackBase, noParent)
	t, ok := newTask(p, ustackBase, true)
	if !ok {
		ms.Destroy()
		sys.pids.Dealloc(p.pid)
		return nil, errNoUserStack
	}
	p.tasks = []*Task{t}
	p.fdTable = sys.stdioTable()
	sys.initTrapContext(t, entry)

	if sys.initProc == nil {
		sys.initProc = p
	} else {
		p.parent = sys.initProc.pid
		sys.initProc.children = append(sys.initProc.children, p.pid)
	}

	sys.manager.insertProcess(p)
	sys.manager.add(t)
	return p, nil
}

// Spawn loads the named application and creates a process for it.
func (sys *System) Spawn(name string) (*Process, *kernel.Error) {
	image, ok := sys.loader.Load(name)
	if !ok {
		return nil, errNoSuchApp
	}
	return sys.NewProcess(image)
}

// Fork duplicates the current single-threaded process and returns the
// child. The child's main thread is ready and resumes from the same trap
// context. Fork returns nil if the parent has more than one thread.
func (sys *System) Fork() *Process {
	parent := sys.CurrentProcess()
	if parent.ThreadCount() != 1 {
		return nil
	}

	ms := vmm.FromExistedUser(parent.memorySet)
	child := sys.newProcessControlBlock(ms, parent.ustackBase, parent.pid)
	child.heapBottom = parent.heapBottom
	child.programBrk = parent.programBrk
	child.signalMask = parent.signalMask
	child.signalActions = parent.signalActions
	child.fdTable = make([]*fs.Handle, len(parent.fdTable))
	for fd, h := range parent.fdTable {
		if h != nil {
			child.fdTable[fd] = h.Retain()
		}
	}

	t, _ := newTask(child, parent.ustackBase, false)
	child.tasks = []*Task{t}
	t.TrapContext().KernelSp = uint64(t.kstack.Top())

	parent.children = append(parent.children, child.pid)
	sys.manager.insertProcess(child)
	sys.manager.add(t)
	return child
}

// Exec replaces the image of the current single-threaded process with the
// named application and passes it args. It returns argc, or -1 if the
// application does not exist or the process has more than one thread.
func (sys *System) Exec(name string, args []string) int {
	image, ok := sys.loader.Load(name)
	if !ok {
		return -1
	}

	p := sys.CurrentProcess()
	if p.ThreadCount() != 1 {
		return -1
	}

	ms, ustackBase, entry, err := vmm.FromELF(sys.frames, sys.layout.Strampoline.Floor(), image)
	if err != nil {
		return -1
	}

	old := p.memorySet
	p.memorySet = ms
	p.ustackBase = ustackBase
	p.heapBottom = vmm.HeapBase(ustackBase)
	p.programBrk = p.heapBottom
	p.signalActions = defaultSignalActions()
	p.handlingSig = -1
	p.trapCxBackup = nil

	t := p.tasks[0]
	t.res.ustackBase = ustackBase
	if err := t.res.allocUserRes(); err != nil {
		kfmt.Panic(errExecUserStack)
	}
	t.trapCxPPN = t.res.TrapContextPPN()
	old.Destroy()

	sp, argv, err := pushArgs(sys.mem, ms.Token(), t.res.UserStackTop(), args)
	if err != nil {
		kfmt.Panic(err)
	}

	cx := sys.initTrapContext(t, entry)
	cx.SetSp(uint64(sp))
	cx.X[cpu.A0] = uint64(len(args))
	cx.X[cpu.A1] = uint64(argv)
	return len(args)
}

// pushArgs copies args onto a fresh user stack: the argv pointer array
// (null terminated) at the top, the NUL terminated strings below it. It
// returns the 8-byte aligned stack pointer and the address of argv.
func pushArgs(mem *mm.PhysMemory, token uint64, top mm.VirtAddr, args []string) (sp, argv mm.VirtAddr, err *kernel.Error) {
	need := uint64(len(args)+1) * 8
	for _, arg := range args {
		need += uint64(len(arg)) + 1
	}
	if need+8 > vmm.UserStackSize {
		return 0, 0, errArgsOverflow
	}

	sp = top - mm.VirtAddr(uint64(len(args)+1)*8)
	argv = sp
	if err = vmm.WriteUint64(mem, token, argv+mm.VirtAddr(len(args)*8), 0); err != nil {
		return 0, 0, err
	}
	for i, arg := range args {
		sp -= mm.VirtAddr(len(arg) + 1)
		if err = vmm.WriteUint64(mem, token, argv+mm.VirtAddr(i*8), uint64(sp)); err != nil {
			return 0, 0, err
		}
		if err = vmm.CopyOut(mem, token, sp, append([]byte(arg), 0)); err != nil {
			return 0, 0, err
		}
	}
	sp -= sp % 8
	return sp, argv, nil
}

// Exit terminates the current thread with code and never returns. When the
// main thread exits the whole process becomes a zombie: its other threads
// are discarded, its children move to the root process and its memory and
// files are released. The control block and the main kernel stack stay
// until a parent collects the process with Waitpid.
func (sys *System) Exit(code int32) {
	t := sys.processor.current
	p := t.process

	t.exited = true
	t.exitCode = code
	t.res.release()
	t.res = nil

	if t.tid == 0 {
		if p == sys.initProc {
			kfmt.Printf("Idle process exit with exit_code %d ...\n", code)
			sys.fw.Shutdown(code != 0)
		}

		p.zombie = true
		p.exitCode = code

		if root := sys.initProc; root != nil && root != p {
			for _, pid := range p.children {
				if c := sys.manager.process(pid); c != nil {
					c.parent = root.pid
				}
				root.children = append(root.children, pid)
			}
		}
		p.children = nil

		for _, other := range p.tasks[1:] {
			if other == nil {
				continue
			}
			sys.manager.remove(other)
			sys.removeTimers(other)
			sys.stopFlow(other)
			if other.res != nil {
				other.res.release()
				other.res = nil
			}
			other.kstack.release()
		}
		p.tasks = p.tasks[:1]

		p.memorySet.RecycleDataPages()
		p.releaseFdTable()
		p.mutexes = nil
	}

	sys.exitFlow(t)
}

// Waitpid collects a zombie child. pid -1 matches any child. The exit code
// is stored at exitCodePtr in the caller's address space unless it is zero.
// It returns the pid of the collected child, or -1 if no child matches or
// none of the matching ones has exited yet.
func (sys *System) Waitpid(pid int, exitCodePtr mm.VirtAddr) int {
	p := sys.CurrentProcess()

	for i, cpid := range p.children {
		if pid != -1 && pid != cpid {
			continue
		}

		child := sys.manager.process(cpid)
		if child == nil || !child.zombie {
			continue
		}

		if exitCodePtr != 0 {
			if err := vmm.WriteInt32(sys.mem, p.UserToken(), exitCodePtr, child.exitCode); err != nil {
				return -1
			}
		}
		p.children = append(p.children[:i], p.children[i+1:]...)
		sys.collect(child)
		return cpid
	}

	return -1
}

// collect releases what is left of a zombie.
func (sys *System) collect(p *Process) {
	if len(p.tasks) != 1 {
		kfmt.Panic(errProcessLeak)
	}
	main := p.tasks[0]
	if _, ok := sys.flows[main]; ok || sys.manager.queued(main) || sys.sleeping(main) {
		kfmt.Panic(errProcessLeak)
	}

	main.kstack.release()
	p.tasks = nil
	p.memorySet.Destroy()
	sys.manager.removeProcess(p.pid)
	sys.pids.Dealloc(p.pid)
}

// ThreadCreate adds a thread to the current process that starts at entry
// with arg in a0. It returns the new tid, or -1 if its stack cannot be
// mapped.
func (sys *System) ThreadCreate(entry, arg uint64) int {
	p := sys.CurrentProcess()

	t, ok := newTask(p, p.ustackBase, true)
	if !ok {
		return -1
	}

	for len(p.tasks) <= t.tid {
		p.tasks = append(p.tasks, nil)
	}
	if stale := p.tasks[t.tid]; stale != nil {
		stale.kstack.release()
	}
	p.tasks[t.tid] = t

	cx := sys.initTrapContext(t, entry)
	cx.X[cpu.A0] = arg
	sys.manager.add(t)
	return t.tid
}

// Waittid joins the thread tid of the current process. It returns -1 for
// the caller itself or a free slot, -2 if the thread is still running and
// its exit code otherwise.
func (sys *System) Waittid(tid int) int {
	t := sys.processor.current
	p := t.process
	if tid == t.tid {
		return -1
	}

	w := p.Task(tid)
	if w == nil {
		return -1
	}
	if !w.exited {
		return -2
	}

	p.tasks[tid] = nil
	w.kstack.release()
	return int(w.exitCode)
}
