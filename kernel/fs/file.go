// Package fs defines the file capability referenced by process descriptor
// tables together with the console and pipe implementations.
package fs

import (
	"io"
	"rvos/kernel/mm/vmm"
)

// File is an open file. Read and Write transfer bytes between the file and a
// user buffer and return the number of bytes transferred; they may suspend
// the calling thread while the file is not ready.
type File interface {
	Readable() bool
	Writable() bool
	Read(buf vmm.UserBuffer) int
	Write(buf vmm.UserBuffer) int
}

// Yielder gives up the processor until the calling thread is scheduled
// again.
type Yielder interface {
	Yield()
}

// Handle is a reference counted open file shared by every descriptor that
// refers to it. Descriptors created by fork and dup share the handle; the
// file is closed when the last one is released.
type Handle struct {
	File

	refs int
}

// NewHandle returns a handle holding one reference to f.
func NewHandle(f File) *Handle {
	return &Handle{File: f, refs: 1}
}

// Retain adds a reference and returns the handle.
func (h *Handle) Retain() *Handle {
	h.refs++
	return h
}

// Release drops a reference. Dropping the last one closes the file if it
// implements io.Closer.
func (h *Handle) Release() {
	h.refs--
	if h.refs != 0 {
		return
	}
	if c, ok := h.File.(io.Closer); ok {
		c.Close()
	}
}

// Refs returns the number of live references.
func (h *Handle) Refs() int { return h.refs }
