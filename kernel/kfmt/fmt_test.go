package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	origSink := outputSink
	defer func() {
		outputSink = origSink
	}()

	specs := []struct {
		format string
		args   []interface{}
		exp    string
	}{
		{"no args", nil, "no args"},
		{"pid %d exited with code %d\n", []interface{}{3, int32(-11)}, "pid 3 exited with code -11\n"},
		{"satp=%#x", []interface{}{uint64(8<<60 | 0x80400)}, "satp=0x8000000000080400"},
		{"[%s] %t", []interface{}{"kernel", true}, "[kernel] true"},
	}

	var buf bytes.Buffer
	outputSink = &buf

	for specIndex, spec := range specs {
		buf.Reset()
		Printf(spec.format, spec.args...)

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	origSink := outputSink
	defer func() {
		outputSink = origSink
	}()

	earlyPrintBuffer = ringBuffer{}
	outputSink = nil

	Printf("early %s ", "boot")
	Printf("message")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early boot message", buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to flush %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the installed sink")
	}

	buf.Reset()
	Printf("late")
	if exp, got := "late", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
