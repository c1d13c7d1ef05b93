package task

import "container/heap"

type timerCondVar struct {
	expire uint64
	task   *Task
}

// timerHeap is a min-heap of sleeping threads ordered by wakeup tick.
type timerHeap []timerCondVar

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expire < h[j].expire }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerCondVar)) }

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = timerCondVar{}
	*h = old[:n-1]
	return item
}

func (sys *System) addTimer(expire uint64, t *Task) {
	heap.Push(&sys.timers, timerCondVar{expire: expire, task: t})
}

// checkTimers wakes up every sleeper whose deadline has passed.
func (sys *System) checkTimers() {
	now := sys.hart.Time()
	for sys.timers.Len() != 0 && sys.timers[0].expire <= now {
		cv := heap.Pop(&sys.timers).(timerCondVar)
		sys.wakeup(cv.task)
	}
}

// removeTimers drops every sleep entry of t.
func (sys *System) removeTimers(t *Task) {
	kept := sys.timers[:0]
	for _, cv := range sys.timers {
		if cv.task != t {
			kept = append(kept, cv)
		}
	}
	for i := len(kept); i < len(sys.timers); i++ {
		sys.timers[i] = timerCondVar{}
	}
	sys.timers = kept
	heap.Init(&sys.timers)
}

func (sys *System) sleeping(t *Task) bool {
	for _, cv := range sys.timers {
		if cv.task == t {
			return true
		}
	}
	return false
}

// Sleep blocks the current thread for at least ms milliseconds.
func (sys *System) Sleep(ms uint64) {
	t := sys.processor.current
	sys.addTimer(sys.hart.Time()+ms*sys.ticksPerMs(), t)
	sys.Block()
}
