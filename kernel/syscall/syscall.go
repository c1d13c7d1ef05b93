// Package syscall decodes system calls made by user threads and routes them
// to the task and file subsystems.
package syscall

import (
	"rvos/kernel/kfmt"
	"rvos/kernel/task"
)

// System call numbers.
const (
	SysDup         = 24
	SysClose       = 57
	SysPipe        = 59
	SysRead        = 63
	SysWrite       = 64
	SysExit        = 93
	SysSleep       = 101
	SysYield       = 124
	SysKill        = 129
	SysSigaction   = 134
	SysSigprocmask = 135
	SysSigreturn   = 136
	SysGetTime     = 169
	SysGetpid      = 172
	SysSbrk        = 214
	SysFork        = 220
	SysExec        = 221
	SysWaitpid     = 260

	SysThreadCreate = 1000
	SysGettid       = 1001
	SysWaittid      = 1002

	SysMutexCreate = 1010
	SysMutexLock   = 1011
	SysMutexUnlock = 1012
)

type handlerFn func(sys *task.System, args [3]uint64) int64

var handlers = map[uint64]handlerFn{
	SysDup:          sysDup,
	SysClose:        sysClose,
	SysPipe:         sysPipe,
	SysRead:         sysRead,
	SysWrite:        sysWrite,
	SysExit:         sysExit,
	SysSleep:        sysSleep,
	SysYield:        sysYield,
	SysKill:         sysKill,
	SysSigaction:    sysSigaction,
	SysSigprocmask:  sysSigprocmask,
	SysSigreturn:    sysSigreturn,
	SysGetTime:      sysGetTime,
	SysGetpid:       sysGetpid,
	SysSbrk:         sysSbrk,
	SysFork:         sysFork,
	SysExec:         sysExec,
	SysWaitpid:      sysWaitpid,
	SysThreadCreate: sysThreadCreate,
	SysGettid:       sysGettid,
	SysWaittid:      sysWaittid,
	SysMutexCreate:  sysMutexCreate,
	SysMutexLock:    sysMutexLock,
	SysMutexUnlock:  sysMutexUnlock,
}

// Dispatch runs system call id for the current thread and returns the
// value for its a0 register. Unknown calls fail with -1.
func Dispatch(sys *task.System, id uint64, args [3]uint64) int64 {
	handler, ok := handlers[id]
	if !ok {
		kfmt.Printf("unsupported syscall %d from pid %d\n", id, sys.CurrentProcess().Pid())
		return -1
	}
	return handler(sys, args)
}
