// Package console provides the character device behind the firmware console
// calls.
package console

import (
	"errors"
	"io"
	"rvos/device"
	"rvos/kernel"
	"sync"
	"time"
)

// ErrNoInput is returned by GetChar when no byte is available yet.
var ErrNoInput = errors.New("console: no input available")

// Device is a byte-oriented console.
type Device interface {
	device.Driver
	io.Writer

	// PutChar writes one byte.
	PutChar(byte)

	// GetChar returns the next input byte without waiting for the
	// input stream. It returns ErrNoInput when nothing is buffered yet and
	// io.EOF once the input is exhausted.
	GetChar() (byte, error)
}

// Serial is a console device backed by an input stream and an output
// stream. Inputs implementing io.ByteReader are read synchronously; any
// other input is drained by a background reader so GetChar never blocks.
type Serial struct {
	out io.Writer

	in io.ByteReader

	mu      sync.Mutex
	pending []byte
	inErr   error
	pump    io.Reader
	arrived chan struct{}
}

// inputWait bounds how long GetChar waits for the background reader before
// reporting ErrNoInput.
const inputWait = time.Millisecond

// NewSerial returns a console reading from in and writing to out. A nil in
// behaves as an empty input.
func NewSerial(in io.Reader, out io.Writer) *Serial {
	s := &Serial{out: out, arrived: make(chan struct{}, 1)}
	switch r := in.(type) {
	case nil:
		s.inErr = io.EOF
	case io.ByteReader:
		s.in = r
	default:
		s.pump = r
	}
	return s
}

// DriverName implements device.Driver.
func (s *Serial) DriverName() string { return "serial" }

// DriverVersion implements device.Driver.
func (s *Serial) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver. It starts the background reader for
// streams that may block.
func (s *Serial) DriverInit(_ io.Writer) *kernel.Error {
	if s.pump != nil {
		go s.readLoop(s.pump)
		s.pump = nil
	}
	return nil
}

func (s *Serial) readLoop(r io.Reader) {
	var buf [256]byte
	for {
		n, err := r.Read(buf[:])
		s.mu.Lock()
		s.pending = append(s.pending, buf[:n]...)
		if err != nil {
			s.inErr = err
		}
		s.mu.Unlock()

		select {
		case s.arrived <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// Write implements io.Writer.
func (s *Serial) Write(p []byte) (int, error) {
	if s.out == nil {
		return len(p), nil
	}
	return s.out.Write(p)
}

// PutChar implements Device.
func (s *Serial) PutChar(c byte) {
	s.Write([]byte{c})
}

// GetChar implements Device.
func (s *Serial) GetChar() (byte, error) {
	if s.in != nil {
		c, err := s.in.ReadByte()
		if err != nil {
			return 0, io.EOF
		}
		return c, nil
	}

	if c, err := s.takePending(); err != ErrNoInput {
		return c, err
	}

	select {
	case <-s.arrived:
	case <-time.After(inputWait):
	}
	return s.takePending()
}

func (s *Serial) takePending() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) != 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return c, nil
	}
	if s.inErr != nil {
		return 0, io.EOF
	}
	return 0, ErrNoInput
}

// Probe returns a probe function that always detects a Serial console over
// the given streams.
func Probe(in io.Reader, out io.Writer) device.ProbeFn {
	return func() device.Driver {
		return NewSerial(in, out)
	}
}
