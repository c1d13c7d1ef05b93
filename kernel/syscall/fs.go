package syscall

import (
	"rvos/kernel/fs"
	"rvos/kernel/mm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/task"
)

func sysWrite(sys *task.System, args [3]uint64) int64 {
	p := sys.CurrentProcess()
	h := p.File(int(int64(args[0])))
	if h == nil || !h.Writable() {
		return -1
	}

	buf, err := vmm.TranslatedByteBuffer(sys.Memory(), p.UserToken(), mm.VirtAddr(args[1]), args[2], false)
	if err != nil {
		return -1
	}
	return int64(h.Write(buf))
}

func sysRead(sys *task.System, args [3]uint64) int64 {
	p := sys.CurrentProcess()
	h := p.File(int(int64(args[0])))
	if h == nil || !h.Readable() {
		return -1
	}

	buf, err := vmm.TranslatedByteBuffer(sys.Memory(), p.UserToken(), mm.VirtAddr(args[1]), args[2], true)
	if err != nil {
		return -1
	}
	return int64(h.Read(buf))
}

func sysClose(sys *task.System, args [3]uint64) int64 {
	if !sys.CurrentProcess().CloseFd(int(int64(args[0]))) {
		return -1
	}
	return 0
}

func sysPipe(sys *task.System, args [3]uint64) int64 {
	p := sys.CurrentProcess()
	ptr := mm.VirtAddr(args[0])

	r, w := fs.MakePipe(sys)
	readFd := p.AllocFd(fs.NewHandle(r))
	writeFd := p.AllocFd(fs.NewHandle(w))

	token := p.UserToken()
	if vmm.WriteUint64(sys.Memory(), token, ptr, uint64(readFd)) != nil ||
		vmm.WriteUint64(sys.Memory(), token, ptr+8, uint64(writeFd)) != nil {
		p.CloseFd(readFd)
		p.CloseFd(writeFd)
		return -1
	}
	return 0
}

func sysDup(sys *task.System, args [3]uint64) int64 {
	p := sys.CurrentProcess()
	h := p.File(int(int64(args[0])))
	if h == nil {
		return -1
	}
	return int64(p.AllocFd(h.Retain()))
}
