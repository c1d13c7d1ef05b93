package task

import (
	"rvos/kernel/sync"
)

// manager holds the FIFO ready queue and every process control block that
// has not been collected yet, indexed by pid.
type manager struct {
	lock  sync.UPLock
	ready []*Task
	procs map[int]*Process
}

func newManager() manager {
	return manager{procs: make(map[int]*Process)}
}

func (m *manager) add(t *Task) {
	m.lock.Acquire()
	m.ready = append(m.ready, t)
	m.lock.Release()
}

// fetch pops the head of the ready queue.
func (m *manager) fetch() *Task {
	m.lock.Acquire()
	defer m.lock.Release()

	if len(m.ready) == 0 {
		return nil
	}
	t := m.ready[0]
	m.ready[0] = nil
	m.ready = m.ready[1:]
	return t
}

// remove drops t from the ready queue if present.
func (m *manager) remove(t *Task) {
	m.lock.Acquire()
	defer m.lock.Release()

	for i, r := range m.ready {
		if r == t {
			m.ready = append(m.ready[:i], m.ready[i+1:]...)
			return
		}
	}
}

func (m *manager) queued(t *Task) bool {
	m.lock.Acquire()
	defer m.lock.Release()

	for _, r := range m.ready {
		if r == t {
			return true
		}
	}
	return false
}

func (m *manager) insertProcess(p *Process) {
	m.lock.Acquire()
	m.procs[p.pid] = p
	m.lock.Release()
}

func (m *manager) process(pid int) *Process {
	m.lock.Acquire()
	defer m.lock.Release()

	return m.procs[pid]
}

func (m *manager) removeProcess(pid int) {
	m.lock.Acquire()
	delete(m.procs, pid)
	m.lock.Release()
}
