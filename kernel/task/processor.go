package task

import (
	"runtime"
	"rvos/kernel"
	"rvos/kernel/kfmt"
	"rvos/kernel/sync"
)

var (
	errLockHeld     = &kernel.Error{Module: "task", Message: "context switch while holding a lock"}
	errFlowReturned = &kernel.Error{Module: "task", Message: "thread kernel flow returned"}

	// ErrDeadlock is returned by Run when no thread can make progress.
	ErrDeadlock = &kernel.Error{Module: "task", Message: "no ready or sleeping thread left"}

	// ErrTickBudget is returned by Run when the tick budget runs out.
	ErrTickBudget = &kernel.Error{Module: "task", Message: "tick budget exhausted"}

	// ErrInitFailed is returned by Run when the init process exits with a
	// non-zero code.
	ErrInitFailed = &kernel.Error{Module: "task", Message: "init process exited with a non-zero code"}
)

// Processor holds the current slot and the idle flow. Exactly one of the
// idle flow and the current thread's flow runs at any time; control passes
// between them over channels.
type Processor struct {
	current *Task

	// idle receives nil when the running thread gives up the processor and
	// the panic value if its flow panicked.
	idle chan interface{}
}

// Run is the idle loop. It repeatedly takes the head of the ready queue and
// switches to it until the machine shuts down.
func (sys *System) Run() (err *kernel.Error) {
	defer func() {
		if r := recover(); r != nil {
			sys.stopAllFlows()
			panic(r)
		}
	}()

	for {
		if requested, failure := sys.fw.ShutdownRequested(); requested {
			sys.stopAllFlows()
			if failure {
				return ErrInitFailed
			}
			return nil
		}

		if sys.maxTicks != 0 && sys.hart.Time() >= sys.maxTicks {
			sys.stopAllFlows()
			return ErrTickBudget
		}

		sys.checkTimers()
		t := sys.manager.fetch()
		if t == nil {
			if !sys.advanceToNextTimer() {
				sys.stopAllFlows()
				return ErrDeadlock
			}
			continue
		}

		// Switching costs a tick so that threads spinning on yield still
		// move the clock forward.
		sys.hart.AdvanceTime(1)
		t.status = Running
		sys.processor.current = t
		sys.switchTo(t)
		sys.processor.current = nil
	}
}

// advanceToNextTimer moves the clock to the earliest sleeper deadline. It
// returns false if nobody sleeps.
func (sys *System) advanceToNextTimer() bool {
	if sys.timers.Len() == 0 {
		return false
	}
	if expire, now := sys.timers[0].expire, sys.hart.Time(); expire > now {
		sys.hart.AdvanceTime(expire - now)
	}
	sys.checkTimers()
	return true
}

// switchTo hands the processor to t and waits until t gives it back.
func (sys *System) switchTo(t *Task) {
	if !t.ctx.started {
		t.ctx.started = true
		sys.flows[t] = struct{}{}
		go sys.runFlow(t)
	} else {
		t.ctx.resume <- true
	}

	if r := <-sys.processor.idle; r != nil {
		panic(r)
	}
}

func (sys *System) runFlow(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			delete(sys.flows, t)
			sys.processor.idle <- r
		}
	}()

	if sys.threadMain == nil {
		kfmt.Panic(errNoThreadMain)
	}
	sys.threadMain(t)
	kfmt.Panic(errFlowReturned)
}

// schedule gives the processor back to the idle flow and parks t until it
// is picked again.
func (sys *System) schedule(t *Task) {
	if sync.Held() != 0 {
		kfmt.Panic(errLockHeld)
	}

	sys.processor.idle <- nil
	if !<-t.ctx.resume {
		runtime.Goexit()
	}
}

// exitFlow gives up the processor for good and ends t's goroutine.
func (sys *System) exitFlow(t *Task) {
	if sync.Held() != 0 {
		kfmt.Panic(errLockHeld)
	}

	delete(sys.flows, t)
	sys.processor.idle <- nil
	runtime.Goexit()
}

// stopFlow ends the goroutine of a parked thread.
func (sys *System) stopFlow(t *Task) {
	if _, ok := sys.flows[t]; !ok {
		return
	}
	delete(sys.flows, t)
	select {
	case t.ctx.resume <- false:
	default:
	}
}

func (sys *System) stopAllFlows() {
	for t := range sys.flows {
		sys.stopFlow(t)
	}
}

// Suspend puts the running thread at the back of the ready queue and
// switches to the next one.
func (sys *System) Suspend() {
	t := sys.processor.current
	t.status = Ready
	sys.manager.add(t)
	sys.schedule(t)
}

// Yield implements fs.Yielder.
func (sys *System) Yield() { sys.Suspend() }

// Block parks the running thread until wakeup is called for it.
func (sys *System) Block() {
	t := sys.processor.current
	t.status = Blocked
	sys.schedule(t)
}

func (sys *System) wakeup(t *Task) {
	t.status = Ready
	sys.manager.add(t)
}

// mutexScheduler adapts the System to the scheduler interface of the
// process mutexes.
type mutexScheduler struct {
	sys *System
}

func (s mutexScheduler) Current() interface{}      { return s.sys.processor.current }
func (s mutexScheduler) Yield()                    { s.sys.Suspend() }
func (s mutexScheduler) Block()                    { s.sys.Block() }
func (s mutexScheduler) Wakeup(thread interface{}) { s.sys.wakeup(thread.(*Task)) }
