package user

import (
	"rvos/kernel/cpu"
	"rvos/kernel/loader"
	"rvos/kernel/syscall"
)

// Apps returns every built-in program keyed by name.
func Apps() loader.Table {
	return loader.Table{
		"initproc":    initProc(),
		"user_shell":  userShell(),
		"echo":        echo(),
		"hello_world": helloWorld(),

		"exec_test":    execTest(),
		"fault_test":   faultTest(),
		"fork_test":    forkTest(),
		"heap_test":    heapTest(),
		"mutex_test":   mutexTest(),
		"pipe_test":    pipeTest(),
		"sig_test":     sigTest(),
		"sleep_test":   sleepTest(),
		"threads_test": threadsTest(),
		"waitpid_test": waitpidTest(),
	}
}

const (
	A0, A1, A2 = cpu.A0, cpu.A1, cpu.A2
	S0, S1, S2 = cpu.S0, cpu.S1, cpu.S2
	S3, S4     = cpu.S3, cpu.S4
	T0, T1, T2 = cpu.T0, cpu.T1, cpu.T2
	T3, T4, T5 = cpu.T3, cpu.T4, cpu.T5
	T6, SP     = cpu.T6, cpu.SP
	Zero       = cpu.Zero
)

// initProc starts the shell and reaps every orphan handed to it until the
// shell itself exits.
func initProc() []byte {
	p := newProgram()
	p.str("init_shell", "user_shell")

	p.Label("main")
	p.enter(2)
	p.sys(syscall.SysFork)
	p.Bnez(A0, "init_parent")

	p.Addi(SP, SP, -16)
	p.La(T0, "init_shell")
	p.Sd(T0, SP, 0)
	p.Sd(Zero, SP, 8)
	p.Mv(A0, T0)
	p.Mv(A1, SP)
	p.sys(syscall.SysExec)
	p.print("[initproc] cannot exec user_shell\n")
	p.Li(A0, -1)
	p.sys(syscall.SysExit)

	p.Label("init_parent")
	p.Mv(S0, A0)
	p.Label("init_loop")
	p.Li(A0, -1)
	p.Li(A1, DataBase)
	p.sys(syscall.SysWaitpid)
	p.Bge(A0, Zero, "init_reaped")
	p.sys(syscall.SysYield)
	p.J("init_loop")

	p.Label("init_reaped")
	p.Beq(A0, S0, "init_done")
	p.Mv(S1, A0)
	p.print("[initproc] Released a zombie process, pid=")
	p.Mv(A0, S1)
	p.Call("print_int")
	p.print(", exit_code=")
	p.Li(T0, DataBase)
	p.Lw(A0, T0, 0)
	p.Call("print_int")
	p.Li(A0, '\n')
	p.Call("putc")
	p.J("init_loop")

	p.Label("init_done")
	p.Li(A0, 0)
	p.leave(2)
	return p.build()
}

// Shell data area.
const (
	shellLine     = DataBase
	shellArgv     = DataBase + 0x200
	shellExitCode = DataBase + 0x300
	shellMaxLine  = 255
	shellMaxArgs  = 15
)

// userShell reads command lines from stdin and runs each one in a child
// process. It exits at the end of input.
func userShell() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(5)
	p.Li(S0, shellLine)
	p.Li(S2, shellArgv)
	p.print("rvos user shell\n")

	p.Label("sh_prompt")
	p.print(">> ")
	p.Li(S1, 0)

	p.Label("sh_read")
	p.Call("getchar")
	p.Blt(A0, Zero, "sh_eof")
	p.Li(T0, '\n')
	p.Beq(A0, T0, "sh_line")
	p.Li(T0, '\r')
	p.Beq(A0, T0, "sh_line")
	p.Li(T0, 0x7f)
	p.Beq(A0, T0, "sh_backspace")
	p.Li(T0, 0x08)
	p.Beq(A0, T0, "sh_backspace")
	p.Li(T0, shellMaxLine)
	p.Bge(S1, T0, "sh_read")
	p.Add(T1, S0, S1)
	p.Sb(A0, T1, 0)
	p.Addi(S1, S1, 1)
	p.J("sh_read")

	p.Label("sh_backspace")
	p.Beqz(S1, "sh_read")
	p.Addi(S1, S1, -1)
	p.J("sh_read")

	p.Label("sh_eof")
	p.Beqz(S1, "sh_exit")

	// Split the line on spaces into the argv array.
	p.Label("sh_line")
	p.Beqz(S1, "sh_prompt")
	p.Add(T0, S0, S1)
	p.Sb(Zero, T0, 0)
	p.Li(S3, 0)
	p.Mv(T0, S0)
	p.Li(T2, 0)
	p.Label("sh_tok")
	p.Lbu(T1, T0, 0)
	p.Beqz(T1, "sh_tok_done")
	p.Li(T3, ' ')
	p.Bne(T1, T3, "sh_tok_char")
	p.Sb(Zero, T0, 0)
	p.Li(T2, 0)
	p.J("sh_tok_next")
	p.Label("sh_tok_char")
	p.Bnez(T2, "sh_tok_next")
	p.Li(T2, 1)
	p.Slli(T4, S3, 3)
	p.Add(T4, S2, T4)
	p.Sd(T0, T4, 0)
	p.Addi(S3, S3, 1)
	p.Li(T5, shellMaxArgs)
	p.Bge(S3, T5, "sh_tok_done")
	p.Label("sh_tok_next")
	p.Addi(T0, T0, 1)
	p.J("sh_tok")
	p.Label("sh_tok_done")
	p.Slli(T4, S3, 3)
	p.Add(T4, S2, T4)
	p.Sd(Zero, T4, 0)
	p.Beqz(S3, "sh_prompt")

	p.sys(syscall.SysFork)
	p.Bnez(A0, "sh_parent")
	p.Ld(A0, S2, 0)
	p.Mv(A1, S2)
	p.sys(syscall.SysExec)
	p.print("Error when executing!\n")
	p.Li(A0, -4)
	p.sys(syscall.SysExit)

	p.Label("sh_parent")
	p.Mv(S4, A0)
	p.Li(A1, shellExitCode)
	p.Call("wait_child")
	p.print("Shell: Process ")
	p.Mv(A0, S4)
	p.Call("print_int")
	p.print(" exited with code ")
	p.Li(T0, shellExitCode)
	p.Lw(A0, T0, 0)
	p.Call("print_int")
	p.Li(A0, '\n')
	p.Call("putc")
	p.J("sh_prompt")

	p.Label("sh_exit")
	p.Li(A0, 0)
	p.leave(5)
	return p.build()
}

// echo prints its arguments separated by spaces.
func echo() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(3)
	p.Mv(S0, A0)
	p.Mv(S1, A1)
	p.Li(S2, 1)
	p.Label("echo_loop")
	p.Bge(S2, S0, "echo_done")
	p.Slli(T0, S2, 3)
	p.Add(T0, S1, T0)
	p.Ld(A0, T0, 0)
	p.Call("puts")
	p.Addi(S2, S2, 1)
	p.Bge(S2, S0, "echo_done")
	p.Li(A0, ' ')
	p.Call("putc")
	p.J("echo_loop")
	p.Label("echo_done")
	p.Li(A0, '\n')
	p.Call("putc")
	p.Li(A0, 0)
	p.leave(3)
	return p.build()
}

func helloWorld() []byte {
	p := newProgram()

	p.Label("main")
	p.enter(0)
	p.print("Hello world from user mode program!\n")
	p.Li(A0, 0)
	p.leave(0)
	return p.build()
}
