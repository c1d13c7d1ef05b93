package fs

import (
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sbi"
)

// Stdin reads the console. Each Read transfers at most one byte, waiting for
// input to arrive; at the end of input it returns 0.
type Stdin struct {
	fw    *sbi.Firmware
	sched Yielder
}

// NewStdin returns the console input file.
func NewStdin(fw *sbi.Firmware, sched Yielder) *Stdin {
	return &Stdin{fw: fw, sched: sched}
}

// Readable implements File.
func (s *Stdin) Readable() bool { return true }

// Writable implements File.
func (s *Stdin) Writable() bool { return false }

// Read implements File.
func (s *Stdin) Read(buf vmm.UserBuffer) int {
	if buf.Len() == 0 {
		return 0
	}

	for {
		switch c := s.fw.ConsoleGetchar(); c {
		case sbi.GetcharEOF:
			return 0
		case sbi.GetcharNoInput:
			s.sched.Yield()
		default:
			return buf.CopyFrom([]byte{byte(c)})
		}
	}
}

// Write implements File.
func (s *Stdin) Write(_ vmm.UserBuffer) int { return 0 }

// Stdout writes to the console.
type Stdout struct {
	fw *sbi.Firmware
}

// NewStdout returns the console output file.
func NewStdout(fw *sbi.Firmware) *Stdout {
	return &Stdout{fw: fw}
}

// Readable implements File.
func (s *Stdout) Readable() bool { return false }

// Writable implements File.
func (s *Stdout) Writable() bool { return true }

// Read implements File.
func (s *Stdout) Read(_ vmm.UserBuffer) int { return 0 }

// Write implements File.
func (s *Stdout) Write(buf vmm.UserBuffer) int {
	for _, b := range buf.Buffers {
		s.fw.Console().Write(b)
	}
	return buf.Len()
}
