package cpu

import (
	"math"
	"rvos/kernel/mm"
)

// Hart is a single RV64IM hardware thread with U and S privilege modes.
// Machine mode is not modelled; firmware services are provided by the sbi
// package acting on the hart directly.
type Hart struct {
	mem *mm.PhysMemory

	x    [32]uint64
	pc   uint64
	mode Mode

	sstatus  uint64
	sie      uint64
	stvec    uint64
	sscratch uint64
	sepc     uint64
	scause   uint64
	stval    uint64
	satp     uint64

	time    uint64
	instret uint64
	timecmp uint64

	natives map[uint64]struct{}
}

// NewHart returns a hart in S-mode with paging disabled and the timer
// comparator disarmed.
func NewHart(mem *mm.PhysMemory) *Hart {
	return &Hart{
		mem:     mem,
		mode:    ModeSupervisor,
		timecmp: math.MaxUint64,
		natives: make(map[uint64]struct{}),
	}
}

// Memory returns the RAM attached to the hart.
func (h *Hart) Memory() *mm.PhysMemory { return h.mem }

// Reg returns the value of an integer register.
func (h *Hart) Reg(r Reg) uint64 { return h.x[r&31] }

// SetReg updates an integer register. Writes to Zero are discarded.
func (h *Hart) SetReg(r Reg, v uint64) {
	if r&31 != Zero {
		h.x[r&31] = v
	}
}

// PC returns the program counter.
func (h *Hart) PC() uint64 { return h.pc }

// Mode returns the current privilege mode.
func (h *Hart) Mode() Mode { return h.mode }

// EnterSupervisor points the hart at pc in S-mode. The kernel uses it to
// start executing kernel-text machine code such as the trampoline.
func (h *Hart) EnterSupervisor(pc uint64) {
	h.mode = ModeSupervisor
	h.pc = pc
}

// Time returns the free running tick counter.
func (h *Hart) Time() uint64 { return h.time }

// AdvanceTime moves the tick counter forward without executing code, as
// when the hart waits for an interrupt.
func (h *Hart) AdvanceTime(ticks uint64) { h.time += ticks }

// SetTimecmp arms the timer comparator; a timer interrupt is pending while
// time >= timecmp.
func (h *Hart) SetTimecmp(v uint64) { h.timecmp = v }

// Timecmp returns the armed timer deadline.
func (h *Hart) Timecmp() uint64 { return h.timecmp }

func (h *Hart) timerPending() bool { return h.time >= h.timecmp }

// RegisterNative marks a kernel-text address as a native entry: when the
// hart is about to execute it in S-mode, Run returns control to Go.
func (h *Hart) RegisterNative(addr uint64) {
	h.natives[addr] = struct{}{}
}

// Run executes instructions until the hart reaches a native entry in S-mode
// and returns that address.
func (h *Hart) Run() uint64 {
	for {
		if h.mode == ModeSupervisor {
			if _, native := h.natives[h.pc]; native {
				return h.pc
			}
		}
		h.Step()
	}
}

// Step takes a pending interrupt or executes one instruction, advancing the
// tick counter by one.
func (h *Hart) Step() {
	h.time++

	if h.interruptPending() {
		h.trap(SupervisorTimer, 0)
		return
	}

	inst, ok := h.fetch()
	if !ok {
		return
	}
	if h.execute(inst) {
		h.instret++
	}
}

// interruptPending returns true if a timer interrupt must be taken before
// the next instruction. S-mode interrupts are only taken when sstatus.SIE
// is set.
func (h *Hart) interruptPending() bool {
	if h.sie&SieSTIE == 0 || !h.timerPending() {
		return false
	}
	return h.mode == ModeUser || h.sstatus&SstatusSIE != 0
}

// trap enters S-mode at stvec recording cause, the faulting pc and tval.
func (h *Hart) trap(cause Cause, tval uint64) {
	h.sepc = h.pc
	h.scause = uint64(cause)
	h.stval = tval

	status := h.sstatus &^ (SstatusSPP | SstatusSPIE | SstatusSIE)
	if h.mode == ModeSupervisor {
		status |= SstatusSPP
	}
	if h.sstatus&SstatusSIE != 0 {
		status |= SstatusSPIE
	}
	h.sstatus = status
	h.mode = ModeSupervisor

	base := h.stvec &^ 3
	if h.stvec&1 != 0 && cause.IsInterrupt() {
		base += 4 * uint64(cause&^InterruptBit)
	}
	h.pc = base
}

// sret returns to the mode saved in sstatus.SPP at sepc.
func (h *Hart) sret() {
	if h.sstatus&SstatusSPP != 0 {
		h.mode = ModeSupervisor
	} else {
		h.mode = ModeUser
	}

	status := h.sstatus &^ (SstatusSPP | SstatusSIE)
	if h.sstatus&SstatusSPIE != 0 {
		status |= SstatusSIE
	}
	h.sstatus = status | SstatusSPIE
	h.pc = h.sepc
}
