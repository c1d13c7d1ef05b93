package vmm

import (
	"bytes"
	"debug/elf"
	"rvos/kernel/loader"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"testing"
)

func newTrampoline(t *testing.T, alloc *pmm.FrameAllocator) mm.PhysPageNum {
	t.Helper()
	return alloc.MustAlloc().PPN
}

func testImage() []byte {
	text := bytes.Repeat([]byte{0x13, 0, 0, 0}, 0x500) // spans two pages
	data := []byte("initialised data")
	return loader.NewBuilder(0x10000).
		AddSegment(loader.Segment{Vaddr: 0x10000, Flags: elf.PF_R | elf.PF_X, Data: text}).
		AddSegment(loader.Segment{Vaddr: 0x13010, Flags: elf.PF_R | elf.PF_W, Data: data, Memsz: 0x1000}).
		Build()
}

func TestFromELF(t *testing.T) {
	alloc, _ := newTestAllocator(t, 128)
	ms, ustackBase, entry, err := FromELF(alloc, newTrampoline(t, alloc), testImage())
	if err != nil {
		t.Fatal(err)
	}

	if exp := uint64(0x10000); entry != exp {
		t.Fatalf("expected entry %#x; got %#x", exp, entry)
	}

	// data segment ends at 0x14010 -> last page 0x14, guard page 0x15000,
	// heap window from 0x16000, guard page, then the stacks
	if exp := mm.VirtAddr(0x16000); HeapBase(ustackBase) != exp {
		t.Fatalf("expected heap base %#x; got %#x", uint64(exp), uint64(HeapBase(ustackBase)))
	}
	if exp := mm.VirtAddr(0x17000 + UserHeapSize); ustackBase != exp {
		t.Fatalf("expected user stack base %#x; got %#x", uint64(exp), uint64(ustackBase))
	}

	specs := []struct {
		vpn   mm.VirtPageNum
		valid bool
		flags mm.PTEFlags
	}{
		{0x10, true, mm.PTERead | mm.PTEExec | mm.PTEUser | mm.PTEValid},
		{0x11, true, mm.PTERead | mm.PTEExec | mm.PTEUser | mm.PTEValid},
		{0x12, false, 0},
		{0x13, true, mm.PTERead | mm.PTEWrite | mm.PTEUser | mm.PTEValid},
		{0x14, true, mm.PTERead | mm.PTEWrite | mm.PTEUser | mm.PTEValid},
		{0x15, false, 0},
		{Trampoline.Floor(), true, mm.PTERead | mm.PTEExec | mm.PTEValid},
	}

	for specIndex, spec := range specs {
		pte, ok := ms.Translate(spec.vpn)
		if ok != spec.valid {
			t.Errorf("[spec %d] expected vpn %#x valid=%t; got %t", specIndex, uint64(spec.vpn), spec.valid, ok)
			continue
		}
		if ok && pte.Flags() != spec.flags {
			t.Errorf("[spec %d] expected flags %#x; got %#x", specIndex, spec.flags, pte.Flags())
		}
	}

	mem := alloc.Memory()
	got := make([]byte, 18)
	if err := CopyIn(mem, ms.Token(), 0x13010-1, got); err != nil {
		t.Fatal(err)
	}
	if exp := append([]byte{0}, []byte("initialised data\x00")...); !bytes.Equal(got, exp) {
		t.Fatalf("expected segment contents %q; got %q", exp, got)
	}

	tail, _ := ms.Translate(0x14)
	if !bytes.Equal(mem.Page(tail.PPN()), make([]byte, mm.PageSize)) {
		t.Fatal("expected the bss part of the data segment to be zero filled")
	}
}

func TestFromELFRejectsBadImages(t *testing.T) {
	wrongMachine := testImage()
	wrongMachine[18] = byte(elf.EM_X86_64)

	specs := []struct {
		descr string
		image []byte
	}{
		{"garbage", []byte("not an elf image")},
		{"wrong machine", wrongMachine},
		{"no loadable segments", loader.NewBuilder(0x10000).Build()},
		{
			"segment beyond user space",
			loader.NewBuilder(0x10000).
				AddSegment(loader.Segment{Vaddr: 1 << 40, Flags: elf.PF_R, Data: []byte{1}}).
				Build(),
		},
	}

	alloc, _ := newTestAllocator(t, 64)
	trampoline := newTrampoline(t, alloc)
	free := alloc.FreeFrames()

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			if _, _, _, err := FromELF(alloc, trampoline, spec.image); err == nil {
				t.Fatal("expected FromELF to fail")
			}
			if got := alloc.FreeFrames(); got != free {
				t.Fatalf("expected failed load to release its frames (%d free); got %d", free, got)
			}
		})
	}
}

func TestFromExistedUserCopiesData(t *testing.T) {
	alloc, _ := newTestAllocator(t, 128)
	parent, _, _, err := FromELF(alloc, newTrampoline(t, alloc), testImage())
	if err != nil {
		t.Fatal(err)
	}

	child := FromExistedUser(parent)
	mem := alloc.Memory()

	if err := CopyOut(mem, child.Token(), 0x13010, []byte("I")); err != nil {
		t.Fatal(err)
	}

	var got [1]byte
	CopyIn(mem, parent.Token(), 0x13010, got[:])
	if got[0] != 'i' {
		t.Fatalf("expected child write to stay invisible to parent; parent sees %q", got[0])
	}
	CopyIn(mem, child.Token(), 0x13010, got[:])
	if got[0] != 'I' {
		t.Fatalf("expected child to see its own write; got %q", got[0])
	}

	for vpn := mm.VirtPageNum(0x10); vpn < 0x15; vpn++ {
		p, pok := parent.Translate(vpn)
		c, cok := child.Translate(vpn)
		if pok != cok || p.Flags() != c.Flags() {
			t.Errorf("expected vpn %#x to have the same mapping shape in both spaces", uint64(vpn))
		}
		if pok && p.PPN() == c.PPN() {
			t.Errorf("expected vpn %#x to be backed by distinct frames", uint64(vpn))
		}
	}
}

func TestMemorySetAreas(t *testing.T) {
	alloc, _ := newTestAllocator(t, 64)
	ms := NewBare(alloc, newTrampoline(t, alloc))

	if err := ms.InsertFramedArea(0x20000, 0x22000, PermR|PermW|PermU); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		start, end mm.VirtAddr
		expErr     bool
	}{
		{0x21000, 0x23000, true},
		{0x1f000, 0x20001, true},
		{0x22000, 0x23000, false},
		{Trampoline, Trampoline + (mm.PageSize - 1), true},
	}

	for specIndex, spec := range specs {
		err := ms.InsertFramedArea(spec.start, spec.end, PermR|PermU)
		if (err != nil) != spec.expErr {
			t.Errorf("[spec %d] expected error=%t; got %v", specIndex, spec.expErr, err)
		}
	}

	ms.RemoveAreaWithStartVPN(mm.VirtAddr(0x20000).Floor())
	if _, ok := ms.Translate(0x20); ok {
		t.Fatal("expected removed area to be unmapped")
	}
	if err := ms.InsertFramedArea(0x20000, 0x21000, PermR|PermU); err != nil {
		t.Fatalf("expected to reuse the range of a removed area; got %v", err)
	}
}

func TestMemorySetHeapResize(t *testing.T) {
	alloc, _ := newTestAllocator(t, 64)
	ms := NewBare(alloc, newTrampoline(t, alloc))
	ms.push(NewMapArea(0x40000, 0x40000, MapFramed, PermR|PermW|PermU), nil, 0)
	ms.InsertFramedArea(0x43000, 0x44000, PermR|PermU)

	if !ms.AppendTo(0x40000, 0x41800) {
		t.Fatal("expected heap growth to succeed")
	}
	for _, vpn := range []mm.VirtPageNum{0x40, 0x41} {
		if _, ok := ms.Translate(vpn); !ok {
			t.Errorf("expected vpn %#x to be mapped after growth", uint64(vpn))
		}
	}

	if ms.AppendTo(0x40000, 0x43001) {
		t.Fatal("expected heap growth into another area to fail")
	}
	if ms.AppendTo(0x50000, 0x51000) {
		t.Fatal("expected growth of an unknown area to fail")
	}

	if !ms.ShrinkTo(0x40000, 0x40010) {
		t.Fatal("expected heap shrink to succeed")
	}
	if _, ok := ms.Translate(0x41); ok {
		t.Fatal("expected vpn 0x41 to be unmapped after shrink")
	}
	if _, ok := ms.Translate(0x40); !ok {
		t.Fatal("expected vpn 0x40 to stay mapped after shrink")
	}
}

func TestMemorySetReleasesFrames(t *testing.T) {
	alloc, _ := newTestAllocator(t, 128)
	trampoline := newTrampoline(t, alloc)
	free := alloc.FreeFrames()

	ms, _, _, err := FromELF(alloc, trampoline, testImage())
	if err != nil {
		t.Fatal(err)
	}
	fork := FromExistedUser(ms)

	ms.RecycleDataPages()
	if _, ok := ms.Translate(0x10); ok {
		t.Fatal("expected RecycleDataPages to unmap all areas")
	}
	ms.Destroy()
	fork.Destroy()

	if got := alloc.FreeFrames(); got != free {
		t.Fatalf("expected all frames to be released (%d free); got %d", free, got)
	}
}

func TestNewKernel(t *testing.T) {
	alloc, _ := newTestAllocator(t, 256)
	mem := alloc.Memory()
	layout := DefaultKernelLayout(mem.End())

	ms := NewKernel(alloc, layout)

	specs := []struct {
		pa    mm.PhysAddr
		flags mm.PTEFlags
	}{
		{layout.Stext, mm.PTERead | mm.PTEExec},
		{layout.Strampoline, mm.PTERead | mm.PTEExec},
		{layout.Srodata, mm.PTERead},
		{layout.Sdata, mm.PTERead | mm.PTEWrite},
		{layout.SbssWithStack, mm.PTERead | mm.PTEWrite},
		{layout.Ekernel, mm.PTERead | mm.PTEWrite},
		{mem.End() - 1, mm.PTERead | mm.PTEWrite},
	}

	for specIndex, spec := range specs {
		pte, ok := ms.Translate(mm.VirtAddr(spec.pa).Floor())
		if !ok {
			t.Errorf("[spec %d] expected %s to be identity mapped", specIndex, spec.pa)
			continue
		}
		if pte.PPN() != spec.pa.Floor() || pte.Flags() != spec.flags|mm.PTEValid {
			t.Errorf("[spec %d] expected ppn %#x flags %#x; got %#x %#x", specIndex,
				uint64(spec.pa.Floor()), spec.flags|mm.PTEValid, uint64(pte.PPN()), pte.Flags())
		}
	}

	pte, ok := ms.Translate(Trampoline.Floor())
	if !ok || pte.PPN() != layout.Strampoline.Floor() {
		t.Fatal("expected the trampoline to map onto the trampoline text page")
	}
}
