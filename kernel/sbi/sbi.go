// Package sbi implements the supervisor binary interface the kernel uses to
// reach machine-level services: the console, the timer comparator and
// power off.
package sbi

import (
	"io"
	"rvos/device/console"
	"rvos/kernel/cpu"
)

// GetcharNoInput is returned by ConsoleGetchar while no input byte is
// available.
const GetcharNoInput = -1

// GetcharEOF is returned by ConsoleGetchar once the console input has
// been exhausted.
const GetcharEOF = -2

// Firmware provides the SBI calls for a single hart.
type Firmware struct {
	hart    *cpu.Hart
	console console.Device

	shutdown bool
	failure  bool
}

// New returns the firmware for hart using cons for console I/O.
func New(hart *cpu.Hart, cons console.Device) *Firmware {
	return &Firmware{hart: hart, console: cons}
}

// ConsolePutchar writes a byte to the console.
func (f *Firmware) ConsolePutchar(c byte) {
	f.console.PutChar(c)
}

// ConsoleGetchar returns the next console byte, GetcharNoInput when none is
// available yet or GetcharEOF at the end of input.
func (f *Firmware) ConsoleGetchar() int {
	c, err := f.console.GetChar()
	switch err {
	case nil:
		return int(c)
	case io.EOF:
		return GetcharEOF
	default:
		return GetcharNoInput
	}
}

// Console returns the console device as a writer.
func (f *Firmware) Console() io.Writer {
	return f.console
}

// SetTimer arms the supervisor timer interrupt for the given absolute time.
func (f *Firmware) SetTimer(stime uint64) {
	f.hart.SetTimecmp(stime)
}

// Shutdown requests power off. The machine stops once the running kernel
// flow returns to the scheduler.
func (f *Firmware) Shutdown(failure bool) {
	f.shutdown = true
	f.failure = f.failure || failure
}

// ShutdownRequested reports whether Shutdown has been called and with what
// status.
func (f *Firmware) ShutdownRequested() (requested, failure bool) {
	return f.shutdown, f.failure
}
