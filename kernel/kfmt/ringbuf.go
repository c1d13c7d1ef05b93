package kfmt

import (
	"fmt"
	"io"
)

// ringBufferSize is the capacity of the early boot log.
const ringBufferSize = 2048

// ringBuffer holds the kernel log written before a sink is installed. When
// full it keeps the newest bytes. A flush after an overflow starts at the
// first complete line and is preceded by a note with the dropped byte count.
type ringBuffer struct {
	buffer      [ringBufferSize]byte
	start, size int
	dropped     int

	// cut is set when the last evicted byte was not a line feed.
	cut bool
}

// Write appends p, evicting the oldest bytes once the buffer is full.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		if rb.size == ringBufferSize {
			rb.cut = rb.pop() != '\n'
			rb.dropped++
		}
		rb.buffer[(rb.start+rb.size)%ringBufferSize] = b
		rb.size++
	}
	return len(p), nil
}

func (rb *ringBuffer) pop() byte {
	b := rb.buffer[rb.start]
	rb.start = (rb.start + 1) % ringBufferSize
	rb.size--
	return b
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int { return rb.size }

// WriteTo drains the buffer into w. It implements io.WriterTo so that
// io.Copy flushes the early log in at most three writes.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64

	if rb.dropped != 0 {
		// drop the partial line left by an eviction
		for rb.cut && rb.size != 0 {
			rb.dropped++
			if rb.pop() == '\n' {
				break
			}
		}
		n, err := fmt.Fprintf(w, "(%d bytes of early output dropped)\n", rb.dropped)
		total += int64(n)
		rb.dropped, rb.cut = 0, false
		if err != nil {
			return total, err
		}
	}

	for rb.size != 0 {
		end := rb.start + rb.size
		if end > ringBufferSize {
			end = ringBufferSize
		}
		n, err := w.Write(rb.buffer[rb.start:end])
		total += int64(n)
		rb.start = (rb.start + n) % ringBufferSize
		rb.size -= n
		if err != nil {
			return total, err
		}
	}
	rb.start = 0
	return total, nil
}
