package irq

import (
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/trap"
)

// Frame describes the trap cause registers latched by the hart when it
// entered the kernel.
type Frame struct {
	Scause  cpu.Cause
	Stval   uint64
	Sepc    uint64
	Sstatus uint64
}

func readFrame(h *cpu.Hart) Frame {
	return Frame{
		Scause:  cpu.Cause(h.ReadCSR(cpu.CSRScause)),
		Stval:   h.ReadCSR(cpu.CSRStval),
		Sepc:    h.ReadCSR(cpu.CSRSepc),
		Sstatus: h.ReadCSR(cpu.CSRSstatus),
	}
}

// Print outputs a dump of the trap frame to the active console.
func (f *Frame) Print() {
	kfmt.Printf("scause = %s stval = %016x\n", f.Scause, f.Stval)
	kfmt.Printf("sepc = %016x sstatus = %016x\n", f.Sepc, f.Sstatus)
}

// printRegs outputs a dump of the saved user registers.
func printRegs(cx *trap.Context) {
	for i := 0; i < len(cx.X); i += 2 {
		kfmt.Printf("x%-2d = %016x x%-2d = %016x\n", i, cx.X[i], i+1, cx.X[i+1])
	}
}
