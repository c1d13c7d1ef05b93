package trap

import (
	"rvos/kernel/cpu"
	"rvos/kernel/mm/vmm"
)

// Trampoline is the assembled trap entry/exit page. Its code is linked to
// run at vmm.Trampoline in every address space.
type Trampoline struct {
	Code []byte

	// AllTraps is the trap entry, installed in stvec before returning to
	// user mode.
	AllTraps uint64

	// Restore expects the trap context address in a0 and the user satp in
	// a1. It switches to the user address space, reloads the registers and
	// executes sret.
	Restore uint64
}

// BuildTrampoline assembles the trampoline page.
func BuildTrampoline() Trampoline {
	a := cpu.NewAssembler(uint64(vmm.Trampoline))

	a.Label("__alltraps")
	// sp -> trap context, sscratch -> user sp
	a.Csrrw(cpu.SP, cpu.CSRSscratch, cpu.SP)
	a.Sd(cpu.RA, cpu.SP, regOffset(cpu.RA))
	for r := cpu.GP; r <= cpu.T6; r++ {
		a.Sd(r, cpu.SP, regOffset(r))
	}
	a.Csrr(cpu.T0, cpu.CSRSstatus)
	a.Csrr(cpu.T1, cpu.CSRSepc)
	a.Sd(cpu.T0, cpu.SP, sstatusOffset)
	a.Sd(cpu.T1, cpu.SP, sepcOffset)
	a.Csrr(cpu.T2, cpu.CSRSscratch)
	a.Sd(cpu.T2, cpu.SP, regOffset(cpu.SP))

	a.Ld(cpu.T0, cpu.SP, kernelSatpOffset)
	a.Ld(cpu.T1, cpu.SP, trapHandlerOffset)
	a.Ld(cpu.SP, cpu.SP, kernelSpOffset)
	a.Csrw(cpu.CSRSatp, cpu.T0)
	a.SfenceVMA()
	a.Jr(cpu.T1)

	a.Label("__restore")
	a.Csrw(cpu.CSRSatp, cpu.A1)
	a.SfenceVMA()
	a.Csrw(cpu.CSRSscratch, cpu.A0)
	a.Mv(cpu.SP, cpu.A0)
	a.Ld(cpu.T0, cpu.SP, sstatusOffset)
	a.Ld(cpu.T1, cpu.SP, sepcOffset)
	a.Csrw(cpu.CSRSstatus, cpu.T0)
	a.Csrw(cpu.CSRSepc, cpu.T1)
	a.Ld(cpu.RA, cpu.SP, regOffset(cpu.RA))
	for r := cpu.GP; r <= cpu.T6; r++ {
		a.Ld(r, cpu.SP, regOffset(r))
	}
	a.Ld(cpu.SP, cpu.SP, regOffset(cpu.SP))
	a.Sret()

	code := a.MustAssemble()
	allTraps, _ := a.Symbol("__alltraps")
	restore, _ := a.Symbol("__restore")
	return Trampoline{Code: code, AllTraps: allTraps, Restore: restore}
}
