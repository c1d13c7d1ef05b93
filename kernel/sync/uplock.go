// Package sync provides the kernel's synchronization primitives. The machine
// has a single hart and kernel code is never preempted, so exclusion only has
// to catch re-entrant access and accesses that span a context switch.
package sync

import (
	"rvos/kernel"
	"rvos/kernel/kfmt"
)

var (
	// held counts UPLocks currently acquired anywhere in the kernel.
	held int

	errAlreadyHeld = &kernel.Error{Module: "sync", Message: "lock already held"}
	errNotHeld     = &kernel.Error{Module: "sync", Message: "release of a lock that is not held"}
)

// UPLock guards state that must only be touched by one kernel flow at a
// time. Unlike a spinlock, contention can never resolve itself on a single
// hart, so acquiring a held lock is a fatal error instead of a wait.
type UPLock struct {
	locked bool
}

// Acquire takes the lock. Acquiring a lock that is already held halts the
// kernel.
func (l *UPLock) Acquire() {
	if l.locked {
		kfmt.Panic(errAlreadyHeld)
		return
	}
	l.locked = true
	held++
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *UPLock) TryToAcquire() bool {
	if l.locked {
		return false
	}
	l.locked = true
	held++
	return true
}

// Release relinquishes a held lock.
func (l *UPLock) Release() {
	if !l.locked {
		kfmt.Panic(errNotHeld)
		return
	}
	l.locked = false
	held--
}

// Held returns the number of locks currently acquired. The scheduler checks
// it is zero before every context switch.
func Held() int {
	return held
}
