package syscall

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"rvos/device/console"
	"rvos/kernel/cpu"
	"rvos/kernel/loader"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sbi"
	"rvos/kernel/task"
	"rvos/kernel/trap"
	"strings"
	"testing"
)

func newTestSystem(t *testing.T, stdin string) (*task.System, *bytes.Buffer) {
	t.Helper()

	mem := mm.NewPhysMemory(mm.MemoryStart, 4<<20)
	layout := vmm.DefaultKernelLayout(mem.End())
	hart := cpu.NewHart(mem)

	var out bytes.Buffer
	fw := sbi.New(hart, console.NewSerial(strings.NewReader(stdin), &out))

	frames := pmm.NewFrameAllocator(mem, layout.Ekernel.Ceil(), mem.End().Floor())
	tramp := trap.BuildTrampoline()
	copy(mem.Page(layout.Strampoline.Floor()), tramp.Code)
	kernelSpace := vmm.NewKernel(frames, layout)

	a := cpu.NewAssembler(0x10000)
	a.Ecall()
	image := loader.NewBuilder(0x10000).
		AddSegment(loader.Segment{Vaddr: 0x10000, Flags: elf.PF_R | elf.PF_X, Data: a.MustAssemble()}).
		Build()

	sys := task.NewSystem(task.Config{
		Hart:        hart,
		Firmware:    fw,
		Frames:      frames,
		Layout:      layout,
		KernelSpace: kernelSpace,
		Trampoline:  tramp,
		Loader:      loader.Table{"app": image},
		MaxTicks:    1 << 32,
	})
	if _, err := sys.Spawn("app"); err != nil {
		t.Fatal(err)
	}
	return sys, &out
}

// runScript runs fn on the main thread of the init process and then exits
// it with code 0.
func runScript(t *testing.T, sys *task.System, fn func(u *userMem)) {
	t.Helper()

	sys.SetThreadMain(func(_ *task.Task) {
		brk, _ := sys.CurrentProcess().ChangeProgramBrk(mm.PageSize)
		fn(&userMem{sys: sys, base: brk})
		sys.Exit(0)
	})
	if err := sys.Run(); err != nil {
		t.Fatal(err)
	}
}

// userMem gives scripts a page of user heap to pass syscall arguments in.
type userMem struct {
	sys  *task.System
	base mm.VirtAddr
}

func (u *userMem) token() uint64 { return u.sys.CurrentProcess().UserToken() }

func (u *userMem) put(off uint64, data []byte) uint64 {
	va := u.base + mm.VirtAddr(off)
	vmm.CopyOut(u.sys.Memory(), u.token(), va, data)
	return uint64(va)
}

func (u *userMem) get(off uint64, n int) []byte {
	buf := make([]byte, n)
	vmm.CopyIn(u.sys.Memory(), u.token(), u.base+mm.VirtAddr(off), buf)
	return buf
}

func (u *userMem) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(u.get(off, 8))
}

func (u *userMem) addr(off uint64) uint64 { return uint64(u.base) + off }

func TestDispatchUnknown(t *testing.T) {
	sys, _ := newTestSystem(t, "")

	var got int64
	runScript(t, sys, func(_ *userMem) {
		got = Dispatch(sys, 4242, [3]uint64{})
	})

	if got != -1 {
		t.Fatalf("expected -1; got %d", got)
	}
}

func TestFileSyscalls(t *testing.T) {
	sys, out := newTestSystem(t, "xy")

	type result struct {
		name string
		got  int64
		exp  int64
	}
	var (
		results []result
		readBuf []byte
		piped   []byte
	)
	check := func(name string, got, exp int64) {
		results = append(results, result{name, got, exp})
	}

	runScript(t, sys, func(u *userMem) {
		msg := u.put(0, []byte("hello"))
		check("write stdout", Dispatch(sys, SysWrite, [3]uint64{1, msg, 5}), 5)
		check("write bad fd", Dispatch(sys, SysWrite, [3]uint64{9, msg, 5}), -1)
		check("write stdin", Dispatch(sys, SysWrite, [3]uint64{0, msg, 5}), -1)
		check("read stdout", Dispatch(sys, SysRead, [3]uint64{1, u.addr(0x100), 1}), -1)
		check("write kernel buffer", Dispatch(sys, SysWrite, [3]uint64{1, uint64(vmm.Trampoline), 4}), -1)

		check("read stdin", Dispatch(sys, SysRead, [3]uint64{0, u.addr(0x100), 1}), 1)
		check("read stdin", Dispatch(sys, SysRead, [3]uint64{0, u.addr(0x101), 1}), 1)
		check("read stdin at eof", Dispatch(sys, SysRead, [3]uint64{0, u.addr(0x102), 1}), 0)
		readBuf = u.get(0x100, 2)

		check("dup", Dispatch(sys, SysDup, [3]uint64{1}), 3)
		check("dup bad fd", Dispatch(sys, SysDup, [3]uint64{17}), -1)
		check("close dup", Dispatch(sys, SysClose, [3]uint64{3}), 0)
		check("close twice", Dispatch(sys, SysClose, [3]uint64{3}), -1)

		check("pipe", Dispatch(sys, SysPipe, [3]uint64{u.addr(0x200)}), 0)
		readFd, writeFd := u.u64(0x200), u.u64(0x208)
		check("pipe read fd", int64(readFd), 3)
		check("pipe write fd", int64(writeFd), 4)
		check("pipe write", Dispatch(sys, SysWrite, [3]uint64{writeFd, msg, 5}), 5)
		check("pipe read end is not writable", Dispatch(sys, SysWrite, [3]uint64{readFd, msg, 5}), -1)
		check("close write end", Dispatch(sys, SysClose, [3]uint64{writeFd}), 0)
		check("pipe read", Dispatch(sys, SysRead, [3]uint64{readFd, u.addr(0x300), 16}), 5)
		piped = u.get(0x300, 5)
		check("pipe bad pointer", Dispatch(sys, SysPipe, [3]uint64{0}), -1)
	})

	for i, r := range results {
		if r.got != r.exp {
			t.Errorf("[spec %d] %s: expected %d; got %d", i, r.name, r.exp, r.got)
		}
	}
	if string(readBuf) != "xy" {
		t.Errorf("expected stdin bytes %q; got %q", "xy", readBuf)
	}
	if string(piped) != "hello" {
		t.Errorf("expected piped bytes %q; got %q", "hello", piped)
	}
	if !strings.Contains(out.String(), "hello") {
		t.Errorf("expected stdout to contain %q; got %q", "hello", out.String())
	}
}

func TestProcessSyscalls(t *testing.T) {
	sys, _ := newTestSystem(t, "")

	var (
		pid, tid, brk, grown, shrunk, tooSmall int64
		badExec, badPath, badWait              int64
		heapBottom                             mm.VirtAddr
	)

	runScript(t, sys, func(u *userMem) {
		pid = Dispatch(sys, SysGetpid, [3]uint64{})
		tid = Dispatch(sys, SysGettid, [3]uint64{})

		heapBottom = u.base
		brk = Dispatch(sys, SysSbrk, [3]uint64{0})
		grown = Dispatch(sys, SysSbrk, [3]uint64{uint64(mm.PageSize)})
		shrunk = Dispatch(sys, SysSbrk, [3]uint64{uint64(0xfffff000)}) // -4096 as int32
		tooSmall = Dispatch(sys, SysSbrk, [3]uint64{uint64(0xffffe000)})

		badExec = Dispatch(sys, SysExec, [3]uint64{u.put(0, []byte("nope\x00")), 0})
		badPath = Dispatch(sys, SysExec, [3]uint64{0, 0})
		badWait = Dispatch(sys, SysWaitpid, [3]uint64{uint64(0xffffffffffffffff), 0})
	})

	specs := []struct {
		name     string
		got, exp int64
	}{
		{"getpid", pid, 0},
		{"gettid", tid, 0},
		{"sbrk(0)", brk, int64(heapBottom) + mm.PageSize},
		{"sbrk(+page)", grown, int64(heapBottom) + mm.PageSize},
		{"sbrk(-page)", shrunk, int64(heapBottom) + 2*mm.PageSize},
		{"sbrk below bottom", tooSmall, -1},
		{"exec missing app", badExec, -1},
		{"exec bad path", badPath, -1},
		{"waitpid without children", badWait, -1},
	}
	for specIndex, spec := range specs {
		if spec.got != spec.exp {
			t.Errorf("[spec %d] %s: expected %#x; got %#x", specIndex, spec.name, spec.exp, spec.got)
		}
	}
}

func TestSignalSyscalls(t *testing.T) {
	sys, _ := newTestSystem(t, "")

	var (
		results []int64
		old     task.SignalAction
		oldMask int64
		newMask int64
	)

	runScript(t, sys, func(u *userMem) {
		act := u.put(0, task.SignalAction{Handler: 0x10000, Mask: task.Flag(task.SIGUSR2)}.Encode())
		oldPtr := u.addr(0x40)

		results = append(results,
			Dispatch(sys, SysSigaction, [3]uint64{task.SIGKILL, act, oldPtr}),
			Dispatch(sys, SysSigaction, [3]uint64{task.SIGSTOP, act, oldPtr}),
			Dispatch(sys, SysSigaction, [3]uint64{32, act, oldPtr}),
			Dispatch(sys, SysSigaction, [3]uint64{task.SIGUSR1, 0, oldPtr}),
			Dispatch(sys, SysSigaction, [3]uint64{task.SIGUSR1, act, oldPtr}),
			Dispatch(sys, SysKill, [3]uint64{77, task.SIGUSR1}),
			Dispatch(sys, SysSigreturn, [3]uint64{}),
		)
		old = task.DecodeSignalAction(u.get(0x40, task.SignalActionSize))

		oldMask = Dispatch(sys, SysSigprocmask, [3]uint64{uint64(task.Flag(task.SIGINT))})
		newMask = Dispatch(sys, SysSigprocmask, [3]uint64{0})
	})

	exp := []int64{-1, -1, -1, -1, 0, -1, -1}
	for i := range exp {
		if i >= len(results) || results[i] != exp[i] {
			t.Fatalf("expected results %v; got %v", exp, results)
		}
	}
	if old != task.DefaultSignalAction {
		t.Errorf("expected the old action to be the default; got %+v", old)
	}
	if oldMask != 0 || newMask != int64(task.Flag(task.SIGINT)) {
		t.Errorf("expected sigprocmask to return 0 then %d; got %d and %d", task.Flag(task.SIGINT), oldMask, newMask)
	}
}

func TestMutexSyscalls(t *testing.T) {
	sys, _ := newTestSystem(t, "")

	var got []int64
	runScript(t, sys, func(_ *userMem) {
		got = append(got,
			Dispatch(sys, SysMutexLock, [3]uint64{0}),
			Dispatch(sys, SysMutexCreate, [3]uint64{0}),
			Dispatch(sys, SysMutexCreate, [3]uint64{1}),
			Dispatch(sys, SysMutexLock, [3]uint64{0}),
			Dispatch(sys, SysMutexUnlock, [3]uint64{0}),
			Dispatch(sys, SysMutexLock, [3]uint64{1}),
			Dispatch(sys, SysMutexUnlock, [3]uint64{1}),
			Dispatch(sys, SysMutexUnlock, [3]uint64{5}),
		)
	})

	exp := []int64{-1, 0, 1, 0, 0, 0, 0, -1}
	if len(got) != len(exp) {
		t.Fatalf("expected %v; got %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("[spec %d] expected %d; got %d", i, exp[i], got[i])
		}
	}
}
