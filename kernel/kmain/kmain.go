// Package kmain boots the machine: it builds the memory, the hart and the
// devices, assembles the kernel address space and runs the init process
// until the machine shuts down.
package kmain

import (
	"io"
	"rvos/device"
	"rvos/device/console"
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/hal"
	"rvos/kernel/irq"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"rvos/kernel/mm/vmm"
	"rvos/kernel/sbi"
	"rvos/kernel/task"
	"rvos/kernel/trap"
	"rvos/user"
)

var errNoConsole = &kernel.Error{Module: "kmain", Message: "no console device detected"}

// Kmain boots the machine described by cfg and returns once it powers off.
// A clean shutdown of the init process returns nil. A kernel panic returns
// cpu.ErrHalted after the panic banner has been printed.
func Kmain(cfg Config) (err *kernel.Error) {
	if err = cfg.validate(); err != nil {
		return err
	}
	if cfg.Apps == nil {
		cfg.Apps = user.Apps()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}

	defer func() {
		if r := recover(); r != nil {
			if r != cpu.ErrHalted {
				panic(r)
			}
			err = cpu.ErrHalted
		}
	}()

	mem := mm.NewPhysMemory(mm.MemoryStart, cfg.MemorySize)
	layout := vmm.DefaultKernelLayout(mem.End())
	hart := cpu.NewHart(mem)

	hal.DetectHardware(device.DriverInfoList{
		{Order: device.DetectOrderEarly, Probe: console.Probe(cfg.Stdin, cfg.Stdout)},
	})
	cons := hal.ActiveConsole()
	if cons == nil {
		return errNoConsole
	}
	fw := sbi.New(hart, cons)

	kfmt.Printf("[kmain] %d KiB of RAM at %#x\n", cfg.MemorySize>>10, uint64(mem.Start()))
	kfmt.Printf("[kmain] kernel image [%#x, %#x)\n", uint64(layout.Stext), uint64(layout.Ekernel))

	frames := pmm.NewFrameAllocator(mem, layout.Ekernel.Ceil(), mem.End().Floor())
	kfmt.Printf("[kmain] %d free frames\n", frames.FreeFrames())

	tramp := trap.BuildTrampoline()
	copy(mem.Page(layout.Strampoline.Floor()), tramp.Code)

	kernelSpace := vmm.NewKernel(frames, layout)
	kernelSpace.Activate(hart)

	sys := task.NewSystem(task.Config{
		Hart:        hart,
		Firmware:    fw,
		Frames:      frames,
		Layout:      layout,
		KernelSpace: kernelSpace,
		Trampoline:  tramp,
		Loader:      cfg.Apps,
		ClockFreq:   cfg.ClockFreq,
		TicksPerSec: cfg.TicksPerSec,
		MaxTicks:    cfg.MaxTicks,
	})
	irq.Install(sys)

	hart.WriteCSR(cpu.CSRSie, cpu.SieSTIE)
	sys.SetNextTrigger()

	if _, err = sys.Spawn(cfg.InitProc); err != nil {
		return err
	}
	kfmt.Printf("[kmain] starting %s\n", cfg.InitProc)
	return sys.Run()
}
