package fs

import (
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sync"
)

// RingBufferSize is the capacity of a pipe in bytes.
const RingBufferSize = 32

type ringBufferStatus uint8

const (
	ringEmpty ringBufferStatus = iota
	ringNormal
	ringFull
)

// pipeRingBuffer is the byte queue shared by both ends of a pipe.
type pipeRingBuffer struct {
	lock sync.UPLock

	arr        [RingBufferSize]byte
	head, tail int
	status     ringBufferStatus

	readers, writers int
}

func (rb *pipeRingBuffer) readByte() byte {
	rb.status = ringNormal
	c := rb.arr[rb.head]
	rb.head = (rb.head + 1) % RingBufferSize
	if rb.head == rb.tail {
		rb.status = ringEmpty
	}
	return c
}

func (rb *pipeRingBuffer) writeByte(c byte) {
	rb.status = ringNormal
	rb.arr[rb.tail] = c
	rb.tail = (rb.tail + 1) % RingBufferSize
	if rb.tail == rb.head {
		rb.status = ringFull
	}
}

func (rb *pipeRingBuffer) availableRead() int {
	switch {
	case rb.status == ringEmpty:
		return 0
	case rb.tail > rb.head:
		return rb.tail - rb.head
	default:
		return rb.tail + RingBufferSize - rb.head
	}
}

func (rb *pipeRingBuffer) availableWrite() int {
	if rb.status == ringFull {
		return 0
	}
	return RingBufferSize - rb.availableRead()
}

// Pipe is one end of a pipe.
type Pipe struct {
	readable bool
	buffer   *pipeRingBuffer
	sched    Yielder
	closed   bool
}

// MakePipe returns the read and write ends of a new pipe. Blocked transfers
// give up the processor through sched.
func MakePipe(sched Yielder) (*Pipe, *Pipe) {
	buffer := &pipeRingBuffer{readers: 1, writers: 1}
	return &Pipe{readable: true, buffer: buffer, sched: sched},
		&Pipe{readable: false, buffer: buffer, sched: sched}
}

// Readable implements File.
func (p *Pipe) Readable() bool { return p.readable }

// Writable implements File.
func (p *Pipe) Writable() bool { return !p.readable }

// Close detaches this end from the pipe. It is called when the last
// descriptor referring to the end is closed.
func (p *Pipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	p.buffer.lock.Acquire()
	if p.readable {
		p.buffer.readers--
	} else {
		p.buffer.writers--
	}
	p.buffer.lock.Release()
	return nil
}

// Read implements File. It returns once buf is full, or once the pipe is
// empty and every write end has been closed.
func (p *Pipe) Read(buf vmm.UserBuffer) int {
	if !p.readable {
		return 0
	}

	var (
		done int
		rb   = p.buffer
	)

	for _, dst := range buf.Buffers {
		for i := 0; i < len(dst); {
			rb.lock.Acquire()
			if rb.availableRead() == 0 {
				eof := rb.writers == 0
				rb.lock.Release()
				if eof {
					return done
				}
				p.sched.Yield()
				continue
			}
			for ; i < len(dst) && rb.availableRead() != 0; i++ {
				dst[i] = rb.readByte()
				done++
			}
			rb.lock.Release()
		}
	}
	return done
}

// Write implements File. It returns once all of buf has been queued, or
// with the bytes queued so far when every read end has been closed.
func (p *Pipe) Write(buf vmm.UserBuffer) int {
	if p.readable {
		return 0
	}

	var (
		done int
		rb   = p.buffer
	)

	for _, src := range buf.Buffers {
		for i := 0; i < len(src); {
			rb.lock.Acquire()
			if rb.readers == 0 {
				rb.lock.Release()
				return done
			}
			if rb.availableWrite() == 0 {
				rb.lock.Release()
				p.sched.Yield()
				continue
			}
			for ; i < len(src) && rb.availableWrite() != 0; i++ {
				rb.writeByte(src[i])
				done++
			}
			rb.lock.Release()
		}
	}
	return done
}
