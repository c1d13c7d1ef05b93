package kfmt

import (
	"bytes"
	"errors"
	"rvos/kernel"
	"rvos/kernel/cpu"
	"testing"
)

func TestPanic(t *testing.T) {
	origSink := outputSink
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = origSink
	}()

	var (
		cpuHaltCalled bool
		buf           bytes.Buffer
	)
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}
	outputSink = &buf

	specs := []struct {
		descr string
		input interface{}
		exp   string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "test", Message: "panic test"},
			"\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with error",
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with string",
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"without error",
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			cpuHaltCalled = false
			buf.Reset()

			Panic(spec.input)

			if got := buf.String(); got != spec.exp {
				t.Fatalf("expected to get:\n%q\ngot:\n%q", spec.exp, got)
			}

			if !cpuHaltCalled {
				t.Fatal("expected cpu.Halt() to be called by Panic")
			}
		})
	}
}

func TestPanicHaltsWithErrHalted(t *testing.T) {
	origSink := outputSink
	defer func() {
		outputSink = origSink
	}()
	outputSink = &bytes.Buffer{}

	defer func() {
		if r := recover(); r != cpu.ErrHalted {
			t.Fatalf("expected Panic to unwind with cpu.ErrHalted; got %v", r)
		}
	}()

	Panic("boom")
	t.Fatal("expected Panic not to return")
}
