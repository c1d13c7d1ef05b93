package syscall

import "rvos/kernel/task"

func sysThreadCreate(sys *task.System, args [3]uint64) int64 {
	return int64(sys.ThreadCreate(args[0], args[1]))
}

func sysGettid(sys *task.System, _ [3]uint64) int64 {
	return int64(sys.Current().Tid())
}

func sysWaittid(sys *task.System, args [3]uint64) int64 {
	return int64(sys.Waittid(int(int64(args[0]))))
}

func sysMutexCreate(sys *task.System, args [3]uint64) int64 {
	return int64(sys.CurrentProcess().CreateMutex(args[0] != 0))
}

func sysMutexLock(sys *task.System, args [3]uint64) int64 {
	m := sys.CurrentProcess().Mutex(int(int64(args[0])))
	if m == nil {
		return -1
	}
	m.Lock()
	return 0
}

func sysMutexUnlock(sys *task.System, args [3]uint64) int64 {
	m := sys.CurrentProcess().Mutex(int(int64(args[0])))
	if m == nil {
		return -1
	}
	m.Unlock()
	return 0
}
