package sync

import (
	"bytes"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"testing"
)

func TestUPLock(t *testing.T) {
	var l UPLock

	base := Held()
	l.Acquire()
	if got := Held(); got != base+1 {
		t.Fatalf("expected held count %d; got %d", base+1, got)
	}
	if l.TryToAcquire() {
		t.Fatal("expected TryToAcquire to return false when lock is held")
	}
	l.Release()
	if got := Held(); got != base {
		t.Fatalf("expected held count %d after release; got %d", base, got)
	}
	if !l.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a free lock")
	}
	l.Release()
}

func TestUPLockMisuseHalts(t *testing.T) {
	origSink := kfmt.GetOutputSink()
	defer kfmt.SetOutputSink(origSink)

	specs := []struct {
		descr string
		fn    func(l *UPLock)
		exp   string
	}{
		{"double acquire", func(l *UPLock) { l.Acquire(); l.Acquire() }, errAlreadyHeld.Message},
		{"release free lock", func(l *UPLock) { l.Release() }, errNotHeld.Message},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			var (
				buf bytes.Buffer
				l   UPLock
			)
			kfmt.SetOutputSink(&buf)
			base := Held()

			func() {
				defer func() {
					if r := recover(); r != cpu.ErrHalted {
						t.Fatalf("expected cpu.ErrHalted; got %v", r)
					}
				}()
				spec.fn(&l)
			}()

			if !bytes.Contains(buf.Bytes(), []byte(spec.exp)) {
				t.Fatalf("expected panic output to mention %q; got %q", spec.exp, buf.String())
			}

			if l.locked {
				l.Release()
			}
			if Held() != base {
				t.Fatalf("expected held count to be restored to %d; got %d", base, Held())
			}
		})
	}
}
