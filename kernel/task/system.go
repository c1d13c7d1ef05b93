// Package task implements processes, threads and the scheduler. All kernel
// state they share lives in a System, which is threaded explicitly through
// every operation instead of living in package globals.
package task

import (
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/fs"
	"rvos/kernel/loader"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sbi"
	"rvos/kernel/trap"
)

// Config lists the collaborators a System is built from.
type Config struct {
	Hart        *cpu.Hart
	Firmware    *sbi.Firmware
	Frames      *pmm.FrameAllocator
	Layout      vmm.KernelLayout
	KernelSpace *vmm.MemorySet
	Trampoline  trap.Trampoline
	Loader      loader.Loader

	// ClockFreq is the number of hart ticks per second and TicksPerSec the
	// number of preemption interrupts per second.
	ClockFreq   uint64
	TicksPerSec uint64

	// MaxTicks stops the idle loop once the hart clock reaches it. Zero
	// disables the limit.
	MaxTicks uint64
}

// System is the kernel context: the machine, the allocators, the task
// manager and the processor.
type System struct {
	hart        *cpu.Hart
	mem         *mm.PhysMemory
	fw          *sbi.Firmware
	frames      *pmm.FrameAllocator
	layout      vmm.KernelLayout
	kernelSpace *vmm.MemorySet
	trampoline  trap.Trampoline
	loader      loader.Loader

	clockFreq   uint64
	ticksPerSec uint64
	maxTicks    uint64

	pids    RecycleAllocator
	kstacks RecycleAllocator

	manager   manager
	processor Processor
	timers    timerHeap

	// flows holds every thread whose kernel goroutine has been started and
	// not yet finished.
	flows map[*Task]struct{}

	stdin  *fs.Stdin
	stdout *fs.Stdout

	initProc   *Process
	threadMain func(*Task)
}

// NewSystem returns a System with no processes.
func NewSystem(cfg Config) *System {
	sys := &System{
		hart:        cfg.Hart,
		mem:         cfg.Hart.Memory(),
		fw:          cfg.Firmware,
		frames:      cfg.Frames,
		layout:      cfg.Layout,
		kernelSpace: cfg.KernelSpace,
		trampoline:  cfg.Trampoline,
		loader:      cfg.Loader,
		clockFreq:   cfg.ClockFreq,
		ticksPerSec: cfg.TicksPerSec,
		maxTicks:    cfg.MaxTicks,
		manager:     newManager(),
		processor:   Processor{idle: make(chan interface{})},
		flows:       make(map[*Task]struct{}),
	}
	if sys.clockFreq == 0 {
		sys.clockFreq = DefaultClockFreq
	}
	if sys.ticksPerSec == 0 {
		sys.ticksPerSec = DefaultTicksPerSec
	}
	sys.stdin = fs.NewStdin(sys.fw, sys)
	sys.stdout = fs.NewStdout(sys.fw)
	return sys
}

// Defaults used when Config leaves the clock unset.
const (
	DefaultClockFreq   = 1000000
	DefaultTicksPerSec = 100
)

var errNoThreadMain = &kernel.Error{Module: "task", Message: "thread entry has not been installed"}

// SetThreadMain installs the function every thread's kernel flow runs. It
// must not return.
func (sys *System) SetThreadMain(fn func(*Task)) { sys.threadMain = fn }

// Hart returns the machine's hart.
func (sys *System) Hart() *cpu.Hart { return sys.hart }

// Memory returns the machine's RAM.
func (sys *System) Memory() *mm.PhysMemory { return sys.mem }

// Firmware returns the SBI implementation.
func (sys *System) Firmware() *sbi.Firmware { return sys.fw }

// Frames returns the physical frame allocator.
func (sys *System) Frames() *pmm.FrameAllocator { return sys.frames }

// Layout returns the kernel image layout.
func (sys *System) Layout() vmm.KernelLayout { return sys.layout }

// Trampoline returns the assembled trampoline.
func (sys *System) Trampoline() trap.Trampoline { return sys.trampoline }

// KernelSpace returns the kernel address space.
func (sys *System) KernelSpace() *vmm.MemorySet { return sys.kernelSpace }

// KernelToken returns the satp value of the kernel address space.
func (sys *System) KernelToken() uint64 { return sys.kernelSpace.Token() }

// Loader returns the executable store.
func (sys *System) Loader() loader.Loader { return sys.loader }

// Current returns the running thread, or nil while idle.
func (sys *System) Current() *Task { return sys.processor.current }

// CurrentProcess returns the process of the running thread.
func (sys *System) CurrentProcess() *Process {
	if t := sys.processor.current; t != nil {
		return t.process
	}
	return nil
}

// Process returns the live or zombie process with the given pid, or nil.
func (sys *System) Process(pid int) *Process { return sys.manager.process(pid) }

// InitProcess returns the root process.
func (sys *System) InitProcess() *Process { return sys.initProc }

func (sys *System) ticksPerMs() uint64 {
	if n := sys.clockFreq / 1000; n != 0 {
		return n
	}
	return 1
}

// TimeMs returns the hart clock in milliseconds.
func (sys *System) TimeMs() uint64 { return sys.hart.Time() / sys.ticksPerMs() }

// SetNextTrigger arms the timer for the next preemption tick.
func (sys *System) SetNextTrigger() {
	sys.fw.SetTimer(sys.hart.Time() + sys.clockFreq/sys.ticksPerSec)
}

// CheckTimers wakes the sleepers whose deadline has passed.
func (sys *System) CheckTimers() { sys.checkTimers() }

func (sys *System) stdioTable() []*fs.Handle {
	return []*fs.Handle{
		fs.NewHandle(sys.stdin),
		fs.NewHandle(sys.stdout),
		fs.NewHandle(sys.stdout),
	}
}
