package kmain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("partial file keeps defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		path := write("board.json", `{"memory_size": 16777216, "max_ticks": 1000, "init_proc": "user_shell"}`)
		if err := LoadConfig(path, &cfg); err != nil {
			t.Fatal(err)
		}

		if exp := uint64(16 << 20); cfg.MemorySize != exp {
			t.Errorf("expected memory size %d; got %d", exp, cfg.MemorySize)
		}
		if exp := uint64(1000); cfg.MaxTicks != exp {
			t.Errorf("expected max ticks %d; got %d", exp, cfg.MaxTicks)
		}
		if exp := "user_shell"; cfg.InitProc != exp {
			t.Errorf("expected init proc %q; got %q", exp, cfg.InitProc)
		}
		if exp := DefaultLogLevel; cfg.LogLevel != exp {
			t.Errorf("expected log level %q; got %q", exp, cfg.LogLevel)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := LoadConfig(filepath.Join(dir, "nope.json"), &cfg); err != errConfigOpen {
			t.Fatalf("expected errConfigOpen; got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := LoadConfig(write("bad.json", `{"memory_size": "lots"`), &cfg); err != errConfigDecode {
			t.Fatalf("expected errConfigDecode; got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	specs := []struct {
		memSize  uint64
		initProc string
		expErr   bool
		expMem   uint64
	}{
		{0, "initproc", false, DefaultMemorySize},
		{2 << 20, "initproc", false, 2 << 20},
		{minMemorySize - 4096, "initproc", true, 0},
		{(2 << 20) + 1, "initproc", true, 0},
		{DefaultMemorySize, "", true, 0},
	}

	for specIndex, spec := range specs {
		cfg := Config{MemorySize: spec.memSize, InitProc: spec.initProc}
		err := cfg.validate()
		if gotErr := err != nil; gotErr != spec.expErr {
			t.Errorf("[spec %d] expected error %t; got %v", specIndex, spec.expErr, err)
			continue
		}
		if !spec.expErr && cfg.MemorySize != spec.expMem {
			t.Errorf("[spec %d] expected memory size %d; got %d", specIndex, spec.expMem, cfg.MemorySize)
		}
	}
}
