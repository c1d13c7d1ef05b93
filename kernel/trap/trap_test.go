package trap

import (
	"bytes"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"rvos/kernel/mm/vmm"
	"testing"
)

type machine struct {
	hart        *cpu.Hart
	mem         *mm.PhysMemory
	layout      vmm.KernelLayout
	kernelSpace *vmm.MemorySet
	userSpace   *vmm.MemorySet
	trampoline  Trampoline
	cx          *Context
}

func newMachine(t *testing.T, build func(a *cpu.Assembler)) *machine {
	t.Helper()

	origSink := kfmt.GetOutputSink()
	kfmt.SetOutputSink(&bytes.Buffer{})
	t.Cleanup(func() { kfmt.SetOutputSink(origSink) })

	mem := mm.NewPhysMemory(mm.MemoryStart, 256*mm.PageSize)
	layout := vmm.DefaultKernelLayout(mem.End())
	alloc := pmm.NewFrameAllocator(mem, layout.Ekernel.Ceil(), mem.End().Floor())

	m := &machine{
		hart:       cpu.NewHart(mem),
		mem:        mem,
		layout:     layout,
		trampoline: BuildTrampoline(),
	}
	copy(mem.Bytes(layout.Strampoline, mm.PageSize), m.trampoline.Code)

	m.kernelSpace = vmm.NewKernel(alloc, layout)
	m.userSpace = vmm.NewBare(alloc, layout.Strampoline.Floor())
	m.userSpace.InsertFramedArea(0x10000, 0x11000, vmm.PermR|vmm.PermW|vmm.PermX|vmm.PermU)
	m.userSpace.InsertFramedArea(0x20000, 0x22000, vmm.PermR|vmm.PermW|vmm.PermU)
	m.userSpace.InsertFramedArea(vmm.TrapContextBase, vmm.Trampoline, vmm.PermR|vmm.PermW)

	a := cpu.NewAssembler(0x10000)
	build(a)
	if err := vmm.CopyOut(mem, m.userSpace.Token(), 0x10000, a.MustAssemble()); err != nil {
		t.Fatal(err)
	}

	pte, _ := m.userSpace.Translate(vmm.TrapContextBase.Floor())
	m.cx = At(mem, pte.PPN())
	*m.cx = AppInitContext(0x10000, 0x22000, m.kernelSpace.Token(), 0xdead0000, uint64(layout.TrapHandler))

	m.kernelSpace.Activate(m.hart)
	m.hart.WriteCSR(cpu.CSRStvec, m.trampoline.AllTraps)
	m.hart.RegisterNative(uint64(layout.TrapHandler))
	return m
}

// enterUser runs the hart from __restore until it traps back into the
// kernel.
func (m *machine) enterUser(t *testing.T) {
	t.Helper()

	m.hart.SetReg(cpu.A0, uint64(vmm.TrapContextBase))
	m.hart.SetReg(cpu.A1, m.userSpace.Token())
	m.hart.EnterSupervisor(m.trampoline.Restore)
	if got, exp := m.hart.Run(), uint64(m.layout.TrapHandler); got != exp {
		t.Fatalf("expected hart to stop at trap handler %#x; stopped at %#x", exp, got)
	}
}

func TestTrampolineRoundTrip(t *testing.T) {
	m := newMachine(t, func(a *cpu.Assembler) {
		a.Li(cpu.A0, 42)
		a.Li(cpu.A7, 93)
		a.Li(cpu.S11, 0x1234)
		a.Ecall()
		a.Addi(cpu.A0, cpu.A0, 1)
		a.Sd(cpu.S11, cpu.SP, -8)
		a.Ecall()
	})

	m.enterUser(t)

	if got := cpu.Cause(m.hart.ReadCSR(cpu.CSRScause)); got != cpu.UserEnvCall {
		t.Fatalf("expected cause %v; got %v", cpu.UserEnvCall, got)
	}

	specs := []struct {
		reg cpu.Reg
		exp uint64
	}{
		{cpu.A0, 42},
		{cpu.A7, 93},
		{cpu.S11, 0x1234},
		{cpu.SP, 0x22000},
	}
	for specIndex, spec := range specs {
		if got := m.cx.X[spec.reg]; got != spec.exp {
			t.Errorf("[spec %d] expected saved x%d = %#x; got %#x", specIndex, spec.reg, spec.exp, got)
		}
	}

	if exp := uint64(0x10010); m.cx.Sepc != exp {
		t.Fatalf("expected saved sepc %#x; got %#x", exp, m.cx.Sepc)
	}
	if m.cx.Sstatus&cpu.SstatusSPP != 0 {
		t.Fatal("expected saved sstatus to record a trap from U-mode")
	}
	if got := m.hart.ReadCSR(cpu.CSRSatp); got != m.kernelSpace.Token() {
		t.Fatalf("expected trampoline to switch to the kernel space; satp = %#x", got)
	}
	if got := m.hart.Reg(cpu.SP); got != 0xdead0000 {
		t.Fatalf("expected trampoline to load the kernel sp; got %#x", got)
	}

	m.cx.Sepc += 4
	m.enterUser(t)

	if got := m.cx.X[cpu.A0]; got != 43 {
		t.Fatalf("expected restored a0 to be incremented to 43; got %d", got)
	}
	if v, err := vmm.ReadUint64(m.mem, m.userSpace.Token(), 0x22000-8); err != nil || v != 0x1234 {
		t.Fatalf("expected user store through restored registers; got %#x, %v", v, err)
	}
}

func TestTrampolineTimerInterrupt(t *testing.T) {
	m := newMachine(t, func(a *cpu.Assembler) {
		a.Label("spin")
		a.Addi(cpu.T0, cpu.T0, 1)
		a.J("spin")
	})

	m.hart.WriteCSR(cpu.CSRSie, cpu.SieSTIE)
	m.hart.SetTimecmp(m.hart.Time() + 200)
	m.enterUser(t)

	if got := cpu.Cause(m.hart.ReadCSR(cpu.CSRScause)); got != cpu.SupervisorTimer {
		t.Fatalf("expected cause %v; got %v", cpu.SupervisorTimer, got)
	}
	if m.cx.X[cpu.T0] == 0 {
		t.Fatal("expected user loop to make progress before the interrupt")
	}
	if m.cx.Sepc != 0x10000 && m.cx.Sepc != 0x10004 {
		t.Fatalf("expected interrupted pc inside the loop; got %#x", m.cx.Sepc)
	}
}

func TestContextLayout(t *testing.T) {
	specs := []struct {
		descr string
		got   int64
		exp   int64
	}{
		{"sstatus", sstatusOffset, 32 * 8},
		{"sepc", sepcOffset, 33 * 8},
		{"kernel_satp", kernelSatpOffset, 34 * 8},
		{"kernel_sp", kernelSpOffset, 35 * 8},
		{"trap_handler", trapHandlerOffset, 36 * 8},
	}
	for _, spec := range specs {
		if spec.got != spec.exp {
			t.Errorf("expected %s at offset %d; got %d", spec.descr, spec.exp, spec.got)
		}
	}

	cx := AppInitContext(0x10000, 0x20000, 1, 2, 3)
	if cx.Sepc != 0x10000 || cx.Reg(cpu.SP) != 0x20000 || cx.KernelSatp != 1 || cx.KernelSp != 2 || cx.TrapHandler != 3 {
		t.Fatalf("unexpected initial context %+v", cx)
	}
}
