package task

import (
	"math"
	"rvos/kernel/cpu"
)

// Kill adds signum to the pending set of process pid. It returns -1 if the
// process does not exist or has exited, signum is out of range or the
// signal is already pending.
func (sys *System) Kill(pid, signum int) int {
	p := sys.manager.process(pid)
	if p == nil || p.zombie || signum < 0 || signum > MaxSig {
		return -1
	}

	flag := Flag(signum)
	if p.signals.Contains(flag) {
		return -1
	}
	p.signals |= flag
	return 0
}

// RaiseSignal adds signum to the pending set of the current process.
func (sys *System) RaiseSignal(signum int) {
	if p := sys.CurrentProcess(); p != nil {
		p.signals |= Flag(signum)
	}
}

// SetSignalAction installs act for signum and returns the previous action.
// Actions for SIGKILL and SIGSTOP cannot be changed.
func (p *Process) SetSignalAction(signum int, act SignalAction) (SignalAction, bool) {
	if signum < 0 || signum > MaxSig || signum == SIGKILL || signum == SIGSTOP {
		return SignalAction{}, false
	}
	old := p.signalActions[signum]
	p.signalActions[signum] = act
	return old, true
}

// SigProcMask replaces the signal mask of the current process and returns
// the previous one, or -1 if mask has bits above the last signal.
func (sys *System) SigProcMask(mask uint64) int64 {
	if mask > math.MaxUint32 {
		return -1
	}
	p := sys.CurrentProcess()
	old := p.signalMask
	p.signalMask = SignalFlags(mask)
	return int64(old)
}

// SigReturn restores the trap context saved when the running user signal
// handler was entered and returns the restored a0. It returns -1 when no
// handler is running.
func (sys *System) SigReturn() int64 {
	t := sys.processor.current
	p := t.process
	if p.trapCxBackup == nil {
		return -1
	}

	p.handlingSig = -1
	cx := t.TrapContext()
	*cx = *p.trapCxBackup
	p.trapCxBackup = nil
	return int64(cx.X[cpu.A0])
}

// HandleSignals delivers the pending signals of the current process before
// it returns to user mode. A stopped process keeps giving up the processor
// until it is continued or killed.
func (sys *System) HandleSignals() {
	t := sys.processor.current
	p := t.process
	for {
		sys.checkPendingSignals(t)
		if !p.frozen || p.killed {
			return
		}
		sys.Suspend()
	}
}

// CheckSignalsError returns the exit code and message of the fatal signal
// the current process has received, if any.
func (sys *System) CheckSignalsError() (int32, string, bool) {
	p := sys.CurrentProcess()
	flags := p.signals
	if p.killed {
		flags |= Flag(SIGKILL)
	}
	return flags.CheckError()
}

func (sys *System) checkPendingSignals(t *Task) {
	p := t.process
	for signum := 0; signum <= MaxSig; signum++ {
		flag := Flag(signum)
		if !p.signals.Contains(flag) || p.signalMask.Contains(flag) {
			continue
		}
		if p.handlingSig != -1 && p.signalActions[p.handlingSig].Mask.Contains(flag) {
			continue
		}

		if isKernelSignal(signum) {
			callKernelSignalHandler(p, signum)
			continue
		}
		callUserSignalHandler(t, signum)
		return
	}
}

func callKernelSignalHandler(p *Process, signum int) {
	flag := Flag(signum)
	switch signum {
	case SIGSTOP:
		p.frozen = true
		p.signals &^= flag
	case SIGCONT:
		if p.signals.Contains(flag) {
			p.signals &^= flag
			p.frozen = false
		}
	default:
		p.killed = true
	}
}

// callUserSignalHandler diverts the thread to the installed handler. The
// handler runs on the interrupted user stack and must finish with
// sigreturn. Without a handler the signal stays pending.
func callUserSignalHandler(t *Task, signum int) {
	p := t.process
	handler := p.signalActions[signum].Handler
	if handler == 0 {
		return
	}

	p.handlingSig = signum
	p.signals &^= Flag(signum)

	cx := t.TrapContext()
	backup := *cx
	p.trapCxBackup = &backup
	cx.Sepc = handler
	cx.X[cpu.A0] = uint64(signum)
}
