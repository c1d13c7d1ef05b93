// Package cpu models the machine's single RV64IM hart: integer registers,
// the supervisor CSR file, an Sv39 MMU and trap entry. The kernel drives the
// hart through Run, which executes machine code until it reaches one of the
// registered native kernel entry points.
package cpu

import "rvos/kernel"

// ErrHalted is the value Halt unwinds with.
var ErrHalted = &kernel.Error{Module: "cpu", Message: "system halted"}

// Halt stops instruction execution. It never returns; the calling kernel
// flow unwinds with ErrHalted.
func Halt() {
	panic(ErrHalted)
}

// Reg names one of the 32 integer registers.
type Reg uint8

// ABI register names.
const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

// Mode is a privilege level.
type Mode uint8

const (
	// ModeUser is U-mode.
	ModeUser Mode = 0

	// ModeSupervisor is S-mode.
	ModeSupervisor Mode = 1
)

// Cause is an scause value. Interrupts have the top bit set.
type Cause uint64

// InterruptBit marks asynchronous causes.
const InterruptBit Cause = 1 << 63

// Synchronous exception causes.
const (
	InstructionMisaligned Cause = 0
	InstructionFault      Cause = 1
	IllegalInstruction    Cause = 2
	Breakpoint            Cause = 3
	LoadMisaligned        Cause = 4
	LoadFault             Cause = 5
	StoreMisaligned       Cause = 6
	StoreFault            Cause = 7
	UserEnvCall           Cause = 8
	SupervisorEnvCall     Cause = 9
	InstructionPageFault  Cause = 12
	LoadPageFault         Cause = 13
	StorePageFault        Cause = 15
)

// Interrupt causes.
const (
	SupervisorSoft     = InterruptBit | 1
	SupervisorTimer    = InterruptBit | 5
	SupervisorExternal = InterruptBit | 9
)

// IsInterrupt returns true for asynchronous causes.
func (c Cause) IsInterrupt() bool { return c&InterruptBit != 0 }

var causeNames = map[Cause]string{
	InstructionMisaligned: "InstructionMisaligned",
	InstructionFault:      "InstructionFault",
	IllegalInstruction:    "IllegalInstruction",
	Breakpoint:            "Breakpoint",
	LoadMisaligned:        "LoadMisaligned",
	LoadFault:             "LoadFault",
	StoreMisaligned:       "StoreMisaligned",
	StoreFault:            "StoreFault",
	UserEnvCall:           "UserEnvCall",
	SupervisorEnvCall:     "SupervisorEnvCall",
	InstructionPageFault:  "InstructionPageFault",
	LoadPageFault:         "LoadPageFault",
	StorePageFault:        "StorePageFault",
	SupervisorSoft:        "SupervisorSoft",
	SupervisorTimer:       "SupervisorTimer",
	SupervisorExternal:    "SupervisorExternal",
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	if c.IsInterrupt() {
		return "Interrupt(unknown)"
	}
	return "Exception(unknown)"
}
