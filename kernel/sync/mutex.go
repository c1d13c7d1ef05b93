package sync

// Scheduler is the subset of the task scheduler used by the user-visible
// mutexes. Threads are opaque handles.
type Scheduler interface {
	// Current returns the running thread.
	Current() interface{}

	// Yield lets other ready threads run before returning.
	Yield()

	// Block parks the running thread until Wakeup is called for it.
	Block()

	// Wakeup makes a blocked thread ready again.
	Wakeup(thread interface{})
}

// Mutex is a lock owned by a user process.
type Mutex interface {
	Lock()
	Unlock()
}

// MutexSpin is a mutex where waiters give up the hart and retry.
type MutexSpin struct {
	sched  Scheduler
	guard  UPLock
	locked bool
}

// NewMutexSpin returns an unlocked yielding mutex.
func NewMutexSpin(sched Scheduler) *MutexSpin {
	return &MutexSpin{sched: sched}
}

// Lock yields until the mutex becomes free and then takes it.
func (m *MutexSpin) Lock() {
	for {
		m.guard.Acquire()
		if !m.locked {
			m.locked = true
			m.guard.Release()
			return
		}
		m.guard.Release()
		m.sched.Yield()
	}
}

// Unlock frees the mutex.
func (m *MutexSpin) Unlock() {
	m.guard.Acquire()
	m.locked = false
	m.guard.Release()
}

// MutexBlocking is a mutex with a FIFO wait queue. Unlock hands ownership
// straight to the oldest waiter.
type MutexBlocking struct {
	sched     Scheduler
	guard     UPLock
	locked    bool
	waitQueue []interface{}
}

// NewMutexBlocking returns an unlocked blocking mutex.
func NewMutexBlocking(sched Scheduler) *MutexBlocking {
	return &MutexBlocking{sched: sched}
}

// Lock takes the mutex or parks the caller on the wait queue.
func (m *MutexBlocking) Lock() {
	m.guard.Acquire()
	if !m.locked {
		m.locked = true
		m.guard.Release()
		return
	}
	m.waitQueue = append(m.waitQueue, m.sched.Current())
	m.guard.Release()
	m.sched.Block()
}

// Unlock wakes the first waiter, which then owns the mutex, or frees it.
func (m *MutexBlocking) Unlock() {
	m.guard.Acquire()
	if len(m.waitQueue) == 0 {
		m.locked = false
		m.guard.Release()
		return
	}
	next := m.waitQueue[0]
	m.waitQueue = m.waitQueue[1:]
	m.guard.Release()
	m.sched.Wakeup(next)
}

// Waiters returns the number of threads parked on the mutex.
func (m *MutexBlocking) Waiters() int {
	return len(m.waitQueue)
}
