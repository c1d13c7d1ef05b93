package user

import (
	"rvos/kernel/cpu"
	"rvos/kernel/syscall"
)

// The programs below check one kernel facility each. They print a line
// ending in "ok" and exit with 0 on success.

func waitpidTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.Li(A0, -1)
	p.Li(A1, DataBase)
	p.sys(syscall.SysWaitpid)
	p.Li(T0, -1)
	p.Bne(A0, T0, "wt_fail")

	p.sys(syscall.SysFork)
	p.Bnez(A0, "wt_parent")
	p.Li(A0, 7)
	p.sys(syscall.SysExit)

	p.Label("wt_parent")
	p.Mv(S0, A0)
	p.Li(A1, DataBase)
	p.Call("wait_child")
	p.Bne(A0, S0, "wt_fail")
	p.Li(T0, DataBase)
	p.Lw(T1, T0, 0)
	p.Li(T2, 7)
	p.Bne(T1, T2, "wt_fail")

	// Collected children cannot be waited for again.
	p.Mv(A0, S0)
	p.Li(A1, DataBase)
	p.sys(syscall.SysWaitpid)
	p.Li(T0, -1)
	p.Bne(A0, T0, "wt_fail")

	p.print("waitpid ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("wt_fail")
	p.print("waitpid failed\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}

func forkTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.Li(T0, DataBase)
	p.Li(T1, 1)
	p.Sd(T1, T0, 0)
	p.sys(syscall.SysFork)
	p.Bnez(A0, "ft_parent")
	p.Li(T0, DataBase)
	p.Li(T1, 2)
	p.Sd(T1, T0, 0)
	p.Li(A0, 0)
	p.sys(syscall.SysExit)

	p.Label("ft_parent")
	p.Mv(S0, A0)
	p.Li(A1, DataBase+8)
	p.Call("wait_child")
	p.Li(T0, DataBase)
	p.Ld(T1, T0, 0)
	p.Li(T2, 1)
	p.Bne(T1, T2, "ft_fail")
	p.print("fork isolation ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("ft_fail")
	p.print("fork isolation broken\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}

func execTest() []byte {
	p := newProgram()
	p.str("et_echo", "echo")
	p.str("et_hi", "hi")

	p.Label("main")
	p.enter(1)
	p.sys(syscall.SysFork)
	p.Bnez(A0, "et_parent")
	p.Addi(SP, SP, -32)
	p.La(T0, "et_echo")
	p.Sd(T0, SP, 0)
	p.La(T1, "et_hi")
	p.Sd(T1, SP, 8)
	p.Sd(Zero, SP, 16)
	p.Mv(A0, T0)
	p.Mv(A1, SP)
	p.sys(syscall.SysExec)
	p.Li(A0, -1)
	p.sys(syscall.SysExit)

	p.Label("et_parent")
	p.Mv(S0, A0)
	p.Li(A1, DataBase)
	p.Call("wait_child")
	p.Li(T0, DataBase)
	p.Lw(T1, T0, 0)
	p.Bnez(T1, "et_fail")
	p.print("exec ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("et_fail")
	p.print("exec failed\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}

const pipeMessage = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!?"

// pipeTest pushes a message twice the pipe capacity from the parent to the
// child.
func pipeTest() []byte {
	const (
		fds    = DataBase
		status = DataBase + 0x20
		buf    = DataBase + 0x100
		n      = int64(len(pipeMessage))
	)
	p := newProgram()
	p.str("pt_msg", pipeMessage)

	p.Label("main")
	p.enter(3)
	p.Li(A0, fds)
	p.sys(syscall.SysPipe)
	p.Bnez(A0, "pt_fail")
	p.sys(syscall.SysFork)
	p.Bnez(A0, "pt_parent")

	// Child: drain the read end.
	p.Li(T0, fds)
	p.Ld(A0, T0, 8)
	p.sys(syscall.SysClose)
	p.Li(S0, 0)
	p.Label("pt_read")
	p.Li(T0, fds)
	p.Ld(A0, T0, 0)
	p.Li(A1, buf)
	p.Add(A1, A1, S0)
	p.Li(A2, n)
	p.Sub(A2, A2, S0)
	p.sys(syscall.SysRead)
	p.Beqz(A0, "pt_read_done")
	p.Blt(A0, Zero, "pt_child_fail")
	p.Add(S0, S0, A0)
	p.Li(T0, n)
	p.Blt(S0, T0, "pt_read")
	p.Label("pt_read_done")
	p.Li(T0, n)
	p.Bne(S0, T0, "pt_child_fail")
	p.Li(T2, 0)
	p.La(T3, "pt_msg")
	p.Li(T4, buf)
	p.Label("pt_cmp")
	p.Li(T0, n)
	p.Bge(T2, T0, "pt_child_ok")
	p.Add(T5, T3, T2)
	p.Lbu(T5, T5, 0)
	p.Add(T6, T4, T2)
	p.Lbu(T6, T6, 0)
	p.Bne(T5, T6, "pt_child_fail")
	p.Addi(T2, T2, 1)
	p.J("pt_cmp")
	p.Label("pt_child_ok")
	p.Li(A0, 0)
	p.sys(syscall.SysExit)
	p.Label("pt_child_fail")
	p.Li(A0, 2)
	p.sys(syscall.SysExit)

	// Parent: fill the write end.
	p.Label("pt_parent")
	p.Mv(S1, A0)
	p.Li(T0, fds)
	p.Ld(A0, T0, 0)
	p.sys(syscall.SysClose)
	p.Li(T0, fds)
	p.Ld(A0, T0, 8)
	p.La(A1, "pt_msg")
	p.Li(A2, n)
	p.sys(syscall.SysWrite)
	p.Mv(S2, A0)
	p.Li(T0, fds)
	p.Ld(A0, T0, 8)
	p.sys(syscall.SysClose)
	p.Li(T0, n)
	p.Bne(S2, T0, "pt_fail")
	p.Mv(A0, S1)
	p.Li(A1, status)
	p.Call("wait_child")
	p.Li(T0, status)
	p.Lw(T1, T0, 0)
	p.Bnez(T1, "pt_fail")
	p.print("pipe ok\n")
	p.Li(A0, 0)
	p.leave(3)
	p.Label("pt_fail")
	p.print("pipe failed\n")
	p.Li(A0, 1)
	p.leave(3)
	return p.build()
}

// sigTest installs a SIGUSR1 handler, signals itself and checks that the
// handler ran and that SIGKILL and SIGSTOP cannot be caught.
func sigTest() []byte {
	const (
		seen   = DataBase
		action = DataBase + 0x40
		old    = DataBase + 0x60
	)
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.Li(T0, action)
	p.La(T1, "sg_handler")
	p.Sd(T1, T0, 0)
	p.Sd(Zero, T0, 8)

	for _, signum := range []int64{9, 19} {
		p.Li(A0, signum)
		p.Li(A1, action)
		p.Li(A2, old)
		p.sys(syscall.SysSigaction)
		p.Li(T0, -1)
		p.Bne(A0, T0, "sg_fail")
	}

	p.Li(A0, 10)
	p.Li(A1, action)
	p.Li(A2, old)
	p.sys(syscall.SysSigaction)
	p.Bnez(A0, "sg_fail")

	p.sys(syscall.SysGetpid)
	p.Li(A1, 10)
	p.sys(syscall.SysKill)
	p.Bnez(A0, "sg_fail")
	p.Li(T0, seen)
	p.Ld(T1, T0, 0)
	p.Li(T2, 10)
	p.Bne(T1, T2, "sg_fail")

	p.print("signal ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("sg_fail")
	p.print("signal failed\n")
	p.Li(A0, 1)
	p.leave(1)

	p.Label("sg_handler")
	p.Li(T0, seen)
	p.Sd(A0, T0, 0)
	p.sys(syscall.SysSigreturn)
	return p.build()
}

// threadsTest runs two threads that record their argument and exit with
// argument+10.
func threadsTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(3)
	p.La(A0, "th_entry")
	p.Li(A1, 1)
	p.sys(syscall.SysThreadCreate)
	p.Mv(S0, A0)
	p.La(A0, "th_entry")
	p.Li(A1, 2)
	p.sys(syscall.SysThreadCreate)
	p.Mv(S1, A0)
	p.Blt(S0, Zero, "th_fail")
	p.Blt(S1, Zero, "th_fail")

	for i, r := range []struct {
		reg  cpu.Reg
		code int64
	}{{S0, 11}, {S1, 12}} {
		loop, done := fmtLabel("th_join", i), fmtLabel("th_joined", i)
		p.Label(loop)
		p.Mv(A0, r.reg)
		p.sys(syscall.SysWaittid)
		p.Li(T0, -2)
		p.Bne(A0, T0, done)
		p.sys(syscall.SysYield)
		p.J(loop)
		p.Label(done)
		p.Li(T0, r.code)
		p.Bne(A0, T0, "th_fail")
	}

	p.Li(T0, DataBase)
	p.Ld(T1, T0, 8)
	p.Li(T2, 1)
	p.Bne(T1, T2, "th_fail")
	p.Ld(T1, T0, 16)
	p.Li(T2, 2)
	p.Bne(T1, T2, "th_fail")

	// A thread cannot wait for itself.
	p.sys(syscall.SysGettid)
	p.sys(syscall.SysWaittid)
	p.Li(T0, -1)
	p.Bne(A0, T0, "th_fail")

	p.print("threads ok\n")
	p.Li(A0, 0)
	p.leave(3)
	p.Label("th_fail")
	p.print("threads failed\n")
	p.Li(A0, 1)
	p.leave(3)

	p.Label("th_entry")
	p.Li(T0, DataBase)
	p.Slli(T1, A0, 3)
	p.Add(T0, T0, T1)
	p.Sd(A0, T0, 0)
	p.Addi(A0, A0, 10)
	p.sys(syscall.SysExit)
	return p.build()
}

// mutexTest increments a shared counter from two threads, yielding inside
// the critical section.
func mutexTest() []byte {
	const (
		counter = DataBase
		mutex   = DataBase + 0x10
		rounds  = 50
	)
	p := newProgram()

	p.Label("main")
	p.enter(3)
	p.Li(A0, 1)
	p.sys(syscall.SysMutexCreate)
	p.Blt(A0, Zero, "mt_fail")
	p.Li(T0, mutex)
	p.Sd(A0, T0, 0)

	p.La(A0, "mt_entry")
	p.Li(A1, 0)
	p.sys(syscall.SysThreadCreate)
	p.Mv(S0, A0)
	p.La(A0, "mt_entry")
	p.Li(A1, 0)
	p.sys(syscall.SysThreadCreate)
	p.Mv(S1, A0)

	for i, reg := range []cpu.Reg{S0, S1} {
		loop, done := fmtLabel("mt_join", i), fmtLabel("mt_joined", i)
		p.Label(loop)
		p.Mv(A0, reg)
		p.sys(syscall.SysWaittid)
		p.Li(T0, -2)
		p.Bne(A0, T0, done)
		p.sys(syscall.SysYield)
		p.J(loop)
		p.Label(done)
		p.Bnez(A0, "mt_fail")
	}

	p.Li(T0, counter)
	p.Ld(T1, T0, 0)
	p.Li(T2, 2*rounds)
	p.Bne(T1, T2, "mt_fail")
	p.print("mutex ok\n")
	p.Li(A0, 0)
	p.leave(3)
	p.Label("mt_fail")
	p.print("mutex failed\n")
	p.Li(A0, 1)
	p.leave(3)

	p.Label("mt_entry")
	p.Li(S0, rounds)
	p.Label("mt_loop")
	p.Li(T0, mutex)
	p.Ld(A0, T0, 0)
	p.sys(syscall.SysMutexLock)
	p.Li(T0, counter)
	p.Ld(S1, T0, 0)
	p.sys(syscall.SysYield)
	p.Addi(S1, S1, 1)
	p.Li(T0, counter)
	p.Sd(S1, T0, 0)
	p.Li(T0, mutex)
	p.Ld(A0, T0, 0)
	p.sys(syscall.SysMutexUnlock)
	p.Addi(S0, S0, -1)
	p.Bnez(S0, "mt_loop")
	p.Li(A0, 0)
	p.sys(syscall.SysExit)
	return p.build()
}

func sleepTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.sys(syscall.SysGetTime)
	p.Mv(S0, A0)
	p.Li(A0, 100)
	p.sys(syscall.SysSleep)
	p.sys(syscall.SysGetTime)
	p.Sub(T0, A0, S0)
	p.Li(T1, 100)
	p.Blt(T0, T1, "sl_fail")
	p.print("sleep ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("sl_fail")
	p.print("sleep failed\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}

// heapTest grows the heap by a page, touches it and shrinks it again.
func heapTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.Li(A0, 0)
	p.sys(syscall.SysSbrk)
	p.Mv(S0, A0)
	p.Li(A0, 4096)
	p.sys(syscall.SysSbrk)
	p.Bne(A0, S0, "hp_fail")
	p.Li(T1, 42)
	p.Sd(T1, S0, 0)
	p.Ld(T2, S0, 0)
	p.Bne(T1, T2, "hp_fail")
	p.Li(A0, -4096)
	p.sys(syscall.SysSbrk)
	p.Sub(T0, A0, S0)
	p.Li(T1, 4096)
	p.Bne(T0, T1, "hp_fail")

	// Shrinking below the heap bottom fails.
	p.Li(A0, -4096)
	p.sys(syscall.SysSbrk)
	p.Li(T0, -1)
	p.Bne(A0, T0, "hp_fail")

	p.print("heap ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("hp_fail")
	p.print("heap failed\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}

// faultTest checks the exit codes of children killed by a bad store and by
// an illegal instruction.
func faultTest() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(1)
	p.sys(syscall.SysFork)
	p.Bnez(A0, "fa_segv")
	p.Sd(Zero, Zero, 0)
	p.Li(A0, 0)
	p.sys(syscall.SysExit)

	p.Label("fa_segv")
	p.Li(A1, DataBase)
	p.Call("wait_child")
	p.Li(T0, DataBase)
	p.Lw(T1, T0, 0)
	p.Li(T2, -11)
	p.Bne(T1, T2, "fa_fail")

	p.sys(syscall.SysFork)
	p.Bnez(A0, "fa_ill")
	p.Emit(0)
	p.Li(A0, 0)
	p.sys(syscall.SysExit)

	p.Label("fa_ill")
	p.Li(A1, DataBase)
	p.Call("wait_child")
	p.Li(T0, DataBase)
	p.Lw(T1, T0, 0)
	p.Li(T2, -4)
	p.Bne(T1, T2, "fa_fail")

	p.print("fault ok\n")
	p.Li(A0, 0)
	p.leave(1)
	p.Label("fa_fail")
	p.print("fault failed\n")
	p.Li(A0, 1)
	p.leave(1)
	return p.build()
}
