package vmm

import (
	"bytes"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/mm"
	"rvos/kernel/mm/pmm"
	"testing"
)

func newTestAllocator(t *testing.T, frames uint64) (*pmm.FrameAllocator, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	origSink := kfmt.GetOutputSink()
	kfmt.SetOutputSink(&buf)
	t.Cleanup(func() { kfmt.SetOutputSink(origSink) })

	mem := mm.NewPhysMemory(mm.MemoryStart, frames*mm.PageSize)
	start := mm.MemoryStart.Floor()
	return pmm.NewFrameAllocator(mem, start, start+mm.PhysPageNum(frames)), &buf
}

func expectHalt(t *testing.T, buf *bytes.Buffer, expMsg string, fn func()) {
	t.Helper()

	defer func() {
		if r := recover(); r != cpu.ErrHalted {
			t.Fatalf("expected cpu.ErrHalted; got %v", r)
		}
		if !bytes.Contains(buf.Bytes(), []byte(expMsg)) {
			t.Fatalf("expected panic output to contain %q; got %q", expMsg, buf.String())
		}
	}()
	fn()
}
