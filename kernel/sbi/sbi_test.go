package sbi

import (
	"bytes"
	"rvos/device/console"
	"rvos/kernel/cpu"
	"rvos/kernel/mm"
	"strings"
	"testing"
)

func TestFirmware(t *testing.T) {
	var out bytes.Buffer
	hart := cpu.NewHart(mm.NewPhysMemory(mm.MemoryStart, mm.PageSize))
	fw := New(hart, console.NewSerial(strings.NewReader("k"), &out))

	fw.ConsolePutchar('o')
	fw.ConsolePutchar('k')
	if got := out.String(); got != "ok" {
		t.Fatalf("expected console output %q; got %q", "ok", got)
	}

	if got := fw.ConsoleGetchar(); got != 'k' {
		t.Fatalf("expected to read 'k'; got %d", got)
	}
	if got := fw.ConsoleGetchar(); got != GetcharEOF {
		t.Fatalf("expected GetcharEOF; got %d", got)
	}

	fw.SetTimer(1234)
	if got := hart.Timecmp(); got != 1234 {
		t.Fatalf("expected timecmp 1234; got %d", got)
	}

	if req, _ := fw.ShutdownRequested(); req {
		t.Fatal("expected no shutdown request")
	}
	fw.Shutdown(true)
	fw.Shutdown(false)
	if req, failure := fw.ShutdownRequested(); !req || !failure {
		t.Fatalf("expected a failed shutdown request; got %t, %t", req, failure)
	}
}
