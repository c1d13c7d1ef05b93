package syscall

import (
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/task"
)

// maxExecArgs bounds the argv array read by exec.
const maxExecArgs = 32

func sysExit(sys *task.System, args [3]uint64) int64 {
	sys.Exit(int32(args[0]))
	return 0
}

func sysYield(sys *task.System, _ [3]uint64) int64 {
	sys.Suspend()
	return 0
}

func sysGetTime(sys *task.System, _ [3]uint64) int64 {
	return int64(sys.TimeMs())
}

func sysSleep(sys *task.System, args [3]uint64) int64 {
	sys.Sleep(args[0])
	return 0
}

func sysGetpid(sys *task.System, _ [3]uint64) int64 {
	return int64(sys.CurrentProcess().Pid())
}

func sysFork(sys *task.System, _ [3]uint64) int64 {
	child := sys.Fork()
	if child == nil {
		return -1
	}

	// The child returns 0 from fork.
	child.Task(0).TrapContext().X[cpu.A0] = 0
	return int64(child.Pid())
}

func sysExec(sys *task.System, args [3]uint64) int64 {
	mem, token := sys.Memory(), sys.CurrentProcess().UserToken()

	path, err := vmm.TranslatedString(mem, token, mm.VirtAddr(args[0]))
	if err != nil {
		return -1
	}

	var argv []string
	for ptr := mm.VirtAddr(args[1]); ptr != 0; ptr += 8 {
		argPtr, err := vmm.ReadUint64(mem, token, ptr)
		if err != nil {
			return -1
		}
		if argPtr == 0 {
			break
		}
		if len(argv) == maxExecArgs {
			return -1
		}

		arg, err := vmm.TranslatedString(mem, token, mm.VirtAddr(argPtr))
		if err != nil {
			return -1
		}
		argv = append(argv, arg)
	}

	return int64(sys.Exec(path, argv))
}

func sysWaitpid(sys *task.System, args [3]uint64) int64 {
	return int64(sys.Waitpid(int(int64(args[0])), mm.VirtAddr(args[1])))
}

func sysSbrk(sys *task.System, args [3]uint64) int64 {
	oldBrk, ok := sys.CurrentProcess().ChangeProgramBrk(int64(int32(args[0])))
	if !ok {
		return -1
	}
	return int64(oldBrk)
}

func sysKill(sys *task.System, args [3]uint64) int64 {
	return int64(sys.Kill(int(int64(args[0])), int(int64(args[1]))))
}

func sysSigaction(sys *task.System, args [3]uint64) int64 {
	signum, actionPtr, oldPtr := int(int64(args[0])), mm.VirtAddr(args[1]), mm.VirtAddr(args[2])
	if actionPtr == 0 || oldPtr == 0 || signum < 0 || signum > task.MaxSig ||
		signum == task.SIGKILL || signum == task.SIGSTOP {
		return -1
	}

	p := sys.CurrentProcess()
	mem, token := sys.Memory(), p.UserToken()

	action, err := readSignalAction(mem, token, actionPtr)
	if err != nil {
		return -1
	}
	if err := writeSignalAction(mem, token, oldPtr, p.SignalAction(signum)); err != nil {
		return -1
	}
	p.SetSignalAction(signum, action)
	return 0
}

func readSignalAction(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr) (task.SignalAction, *kernel.Error) {
	var raw [task.SignalActionSize]byte
	if err := vmm.CopyIn(mem, token, ptr, raw[:]); err != nil {
		return task.SignalAction{}, err
	}
	return task.DecodeSignalAction(raw[:]), nil
}

func writeSignalAction(mem *mm.PhysMemory, token uint64, ptr mm.VirtAddr, act task.SignalAction) *kernel.Error {
	return vmm.CopyOut(mem, token, ptr, act.Encode())
}

func sysSigprocmask(sys *task.System, args [3]uint64) int64 {
	return sys.SigProcMask(args[0])
}

func sysSigreturn(sys *task.System, _ [3]uint64) int64 {
	return sys.SigReturn()
}
