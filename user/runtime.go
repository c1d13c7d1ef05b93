// Package user contains the built-in user programs. Each one is assembled
// into a small statically linked RV64 ELF image at load time.
package user

import (
	"debug/elf"
	"rvos/kernel/cpu"
	"rvos/kernel/loader"
	"rvos/kernel/syscall"
	"strconv"
)

// Image layout shared by every program.
const (
	// TextBase is where code and read-only strings are linked.
	TextBase = 0x10000

	// DataBase is the start of a zero-filled read/write area of DataSize
	// bytes.
	DataBase = 0x20000
	DataSize = 0x1000
)

// program is an assembler preloaded with the C runtime entry and the helper
// routines every program may call.
type program struct {
	*cpu.Assembler

	strings []stringConst
}

type stringConst struct {
	label, value string
}

// newProgram starts an image whose main routine is emitted by the caller
// under the label "main". main receives argc and argv and its return value
// becomes the exit code.
func newProgram() *program {
	p := &program{Assembler: cpu.NewAssembler(TextBase)}
	p.Label("_start")
	p.Call("main")
	p.sys(syscall.SysExit)
	return p
}

// sys emits a system call. Arguments are expected in a0..a2 and the result
// is left in a0.
func (p *program) sys(id int64) {
	p.Li(cpu.A7, id)
	p.Ecall()
}

// enter opens a stack frame saving ra and the first n callee-saved
// registers s0..s(n-1). leave undoes it and returns.
func (p *program) enter(n int) {
	size := frameSize(n)
	p.Addi(cpu.SP, cpu.SP, -size)
	p.Sd(cpu.RA, cpu.SP, 0)
	for i := 0; i < n; i++ {
		p.Sd(savedReg(i), cpu.SP, int64(8*(i+1)))
	}
}

func (p *program) leave(n int) {
	size := frameSize(n)
	p.Ld(cpu.RA, cpu.SP, 0)
	for i := 0; i < n; i++ {
		p.Ld(savedReg(i), cpu.SP, int64(8*(i+1)))
	}
	p.Addi(cpu.SP, cpu.SP, size)
	p.Ret()
}

func frameSize(n int) int64 {
	return int64((8*(n+1) + 15) &^ 15)
}

func savedReg(i int) cpu.Reg {
	if i < 2 {
		return cpu.S0 + cpu.Reg(i)
	}
	return cpu.S2 + cpu.Reg(i-2)
}

// str declares a NUL terminated string under label. Strings are emitted
// after the code.
func (p *program) str(label, s string) {
	p.strings = append(p.strings, stringConst{label, s})
}

// puts writes the string at label to stdout.
func (p *program) puts(label string) {
	p.La(cpu.A0, label)
	p.Call("puts")
}

// print writes the constant s to stdout.
func (p *program) print(s string) {
	label := fmtLabel("str", len(p.strings))
	p.str(label, s)
	p.puts(label)
}

// build emits the helper library and packs the code into an ELF image.
func (p *program) build() []byte {
	p.emitLibrary()
	for _, sc := range p.strings {
		p.Label(sc.label)
		p.Asciz(sc.value)
	}

	entry, _ := p.Symbol("_start")
	return loader.NewBuilder(entry).
		AddSegment(loader.Segment{Vaddr: TextBase, Flags: elf.PF_R | elf.PF_X, Data: p.MustAssemble()}).
		AddSegment(loader.Segment{Vaddr: DataBase, Flags: elf.PF_R | elf.PF_W, Memsz: DataSize}).
		Build()
}

// emitLibrary emits strlen, puts, putc, print_int and getchar.
func (p *program) emitLibrary() {
	// strlen(a0) -> a0
	p.Label("strlen")
	p.Mv(cpu.T0, cpu.A0)
	p.Label("strlen_loop")
	p.Lbu(cpu.T1, cpu.T0, 0)
	p.Beqz(cpu.T1, "strlen_done")
	p.Addi(cpu.T0, cpu.T0, 1)
	p.J("strlen_loop")
	p.Label("strlen_done")
	p.Sub(cpu.A0, cpu.T0, cpu.A0)
	p.Ret()

	// puts(a0): write the NUL terminated string to fd 1.
	p.Label("puts")
	p.enter(1)
	p.Mv(cpu.S0, cpu.A0)
	p.Call("strlen")
	p.Mv(cpu.A2, cpu.A0)
	p.Mv(cpu.A1, cpu.S0)
	p.Li(cpu.A0, 1)
	p.sys(syscall.SysWrite)
	p.leave(1)

	// putc(a0): write one byte to fd 1.
	p.Label("putc")
	p.Addi(cpu.SP, cpu.SP, -16)
	p.Sb(cpu.A0, cpu.SP, 0)
	p.Li(cpu.A0, 1)
	p.Mv(cpu.A1, cpu.SP)
	p.Li(cpu.A2, 1)
	p.sys(syscall.SysWrite)
	p.Addi(cpu.SP, cpu.SP, 16)
	p.Ret()

	// print_int(a0): write a signed decimal number to fd 1.
	p.Label("print_int")
	p.Addi(cpu.SP, cpu.SP, -48)
	p.Addi(cpu.T0, cpu.SP, 32)
	p.Mv(cpu.T1, cpu.A0)
	p.Li(cpu.T3, 0)
	p.Bge(cpu.T1, cpu.Zero, "print_int_pos")
	p.Li(cpu.T3, 1)
	p.Neg(cpu.T1, cpu.T1)
	p.Label("print_int_pos")
	p.Li(cpu.T2, 10)
	p.Label("print_int_loop")
	p.Remu(cpu.T4, cpu.T1, cpu.T2)
	p.Divu(cpu.T1, cpu.T1, cpu.T2)
	p.Addi(cpu.T4, cpu.T4, '0')
	p.Addi(cpu.T0, cpu.T0, -1)
	p.Sb(cpu.T4, cpu.T0, 0)
	p.Bnez(cpu.T1, "print_int_loop")
	p.Beqz(cpu.T3, "print_int_out")
	p.Li(cpu.T4, '-')
	p.Addi(cpu.T0, cpu.T0, -1)
	p.Sb(cpu.T4, cpu.T0, 0)
	p.Label("print_int_out")
	p.Addi(cpu.T5, cpu.SP, 32)
	p.Sub(cpu.A2, cpu.T5, cpu.T0)
	p.Mv(cpu.A1, cpu.T0)
	p.Li(cpu.A0, 1)
	p.sys(syscall.SysWrite)
	p.Addi(cpu.SP, cpu.SP, 48)
	p.Ret()

	// getchar() -> a0: the next stdin byte, or -1 at the end of input.
	p.Label("getchar")
	p.Addi(cpu.SP, cpu.SP, -16)
	p.Li(cpu.A0, 0)
	p.Mv(cpu.A1, cpu.SP)
	p.Li(cpu.A2, 1)
	p.sys(syscall.SysRead)
	p.Blt(cpu.Zero, cpu.A0, "getchar_ok")
	p.Li(cpu.A0, -1)
	p.Addi(cpu.SP, cpu.SP, 16)
	p.Ret()
	p.Label("getchar_ok")
	p.Lbu(cpu.A0, cpu.SP, 0)
	p.Addi(cpu.SP, cpu.SP, 16)
	p.Ret()

	// wait_child(a0 = pid, a1 = exit code ptr) -> a0: polls waitpid,
	// yielding between attempts, until the child is collected.
	p.Label("wait_child")
	p.enter(2)
	p.Mv(cpu.S0, cpu.A0)
	p.Mv(cpu.S1, cpu.A1)
	p.Label("wait_child_loop")
	p.Mv(cpu.A0, cpu.S0)
	p.Mv(cpu.A1, cpu.S1)
	p.sys(syscall.SysWaitpid)
	p.Bge(cpu.A0, cpu.Zero, "wait_child_done")
	p.sys(syscall.SysYield)
	p.J("wait_child_loop")
	p.Label("wait_child_done")
	p.leave(2)
}

func fmtLabel(prefix string, n int) string {
	return prefix + "_" + strconv.Itoa(n)
}
