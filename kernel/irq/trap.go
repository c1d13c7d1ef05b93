// Package irq moves threads between user and kernel mode: it resumes a
// thread's user code through the trampoline and dispatches the traps that
// bring it back.
package irq

import (
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/syscall"
	"rvos/kernel/task"
)

var (
	errTrapFromKernel  = &kernel.Error{Module: "irq", Message: "a trap from kernel"}
	errUnsupportedTrap = &kernel.Error{Module: "irq", Message: "unsupported trap"}
)

// Install registers the kernel trap entries with the hart and makes every
// thread of sys run the user/kernel loop.
func Install(sys *task.System) {
	layout := sys.Layout()
	sys.Hart().RegisterNative(uint64(layout.TrapHandler))
	sys.Hart().RegisterNative(uint64(layout.TrapFromKernel))

	sys.SetThreadMain(func(t *task.Task) {
		for {
			trapReturn(sys, t)
			trapHandler(sys, t)
		}
	})
}

// trapReturn enters user mode through the trampoline restore path and
// returns once the thread traps back into the kernel.
func trapReturn(sys *task.System, t *task.Task) {
	h := sys.Hart()
	tramp := sys.Trampoline()

	h.WriteCSR(cpu.CSRStvec, tramp.AllTraps)
	h.SetReg(cpu.A0, uint64(vmm.TrapContextPosition(t.Tid())))
	h.SetReg(cpu.A1, t.UserToken())
	h.EnterSupervisor(tramp.Restore)

	if stop := h.Run(); stop == uint64(sys.Layout().TrapFromKernel) {
		trapFromKernel(h)
	}
}

func trapFromKernel(h *cpu.Hart) {
	frame := readFrame(h)
	frame.Print()
	kfmt.Panic(errTrapFromKernel)
}

// trapHandler handles the trap that ended the last trapReturn. Traps taken
// while the hart was already in S-mode are fatal.
func trapHandler(sys *task.System, t *task.Task) {
	h := sys.Hart()
	h.WriteCSR(cpu.CSRStvec, uint64(sys.Layout().TrapFromKernel))

	frame := readFrame(h)
	if frame.Sstatus&cpu.SstatusSPP != 0 {
		trapFromKernel(h)
		return
	}

	switch frame.Scause {
	case cpu.UserEnvCall:
		cx := t.TrapContext()
		cx.Sepc += 4
		result := syscall.Dispatch(sys, cx.X[cpu.A7], [3]uint64{cx.X[cpu.A0], cx.X[cpu.A1], cx.X[cpu.A2]})

		// exec replaces the trap context page.
		cx = t.TrapContext()
		cx.X[cpu.A0] = uint64(result)
	case cpu.StoreFault, cpu.StorePageFault,
		cpu.InstructionFault, cpu.InstructionPageFault,
		cpu.LoadFault, cpu.LoadPageFault:
		sys.RaiseSignal(task.SIGSEGV)
	case cpu.IllegalInstruction:
		sys.RaiseSignal(task.SIGILL)
	case cpu.SupervisorTimer:
		sys.SetNextTrigger()
		sys.CheckTimers()
		sys.Suspend()
	default:
		frame.Print()
		printRegs(t.TrapContext())
		kfmt.Panic(errUnsupportedTrap)
	}

	sys.HandleSignals()
	if code, msg, failed := sys.CheckSignalsError(); failed {
		kfmt.Printf("%s\n", msg)
		sys.Exit(code)
	}
}
