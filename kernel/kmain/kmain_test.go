package kmain

import (
	"bytes"
	"debug/elf"
	"rvos/kernel"
	"rvos/kernel/cpu"
	"rvos/kernel/kfmt"
	"rvos/kernel/loader"
	"rvos/kernel/syscall"
	"rvos/kernel/task"
	"rvos/user"
	"strings"
	"testing"
)

const testMaxTicks = 50000000

func testConfig(initProc, stdin string, apps loader.Loader) Config {
	cfg := DefaultConfig()
	cfg.InitProc = initProc
	cfg.MaxTicks = testMaxTicks
	cfg.Stdin = strings.NewReader(stdin)
	cfg.Apps = apps
	return cfg
}

func boot(t *testing.T, cfg Config) (string, *kernel.Error) {
	t.Helper()

	origSink := kfmt.GetOutputSink()
	defer kfmt.SetOutputSink(origSink)

	var out bytes.Buffer
	cfg.Stdout = &out
	err := Kmain(cfg)
	return out.String(), err
}

func TestKmainUserPrograms(t *testing.T) {
	specs := []struct {
		app    string
		expOut []string
	}{
		{"hello_world", []string{"Hello world from user mode program!\n"}},
		{"waitpid_test", []string{"waitpid ok\n"}},
		{"fork_test", []string{"fork isolation ok\n"}},
		{"exec_test", []string{"hi\n", "exec ok\n"}},
		{"pipe_test", []string{"pipe ok\n"}},
		{"sig_test", []string{"signal ok\n"}},
		{"threads_test", []string{"threads ok\n"}},
		{"mutex_test", []string{"mutex ok\n"}},
		{"sleep_test", []string{"sleep ok\n"}},
		{"heap_test", []string{"heap ok\n"}},
		{"fault_test", []string{
			"[kernel] Segmentation Fault, SIGSEGV=11\n",
			"[kernel] Illegal Instruction, SIGILL=4\n",
			"fault ok\n",
		}},
	}

	for specIndex, spec := range specs {
		out, err := boot(t, testConfig(spec.app, "", nil))
		if err != nil {
			t.Errorf("[spec %d] %s: unexpected error: %v\noutput:\n%s", specIndex, spec.app, err, out)
			continue
		}

		for _, exp := range spec.expOut {
			if !strings.Contains(out, exp) {
				t.Errorf("[spec %d] %s: expected output to contain %q; got:\n%s", specIndex, spec.app, exp, out)
			}
		}

		if exp := "[kernel] Idle process exit with exit_code 0"; !strings.Contains(out, exp) {
			t.Errorf("[spec %d] %s: expected output to contain %q; got:\n%s", specIndex, spec.app, exp, out)
		}
	}
}

func TestKmainShell(t *testing.T) {
	specs := []struct {
		stdin  string
		expOut []string
	}{
		{
			"echo hi\n",
			[]string{"rvos user shell\n", ">> ", "hi\n", "Shell: Process 2 exited with code 0\n"},
		},
		{
			"echo  a   b\nhello_world\n",
			[]string{
				"a b\n",
				"Shell: Process 2 exited with code 0\n",
				// pid 2 is recycled
				"Hello world from user mode program!\n",
			},
		},
		{
			"no_such_app\n",
			[]string{"Error when executing!\n", "Shell: Process 2 exited with code -4\n"},
		},
		{
			// backspace removes the typo; the last line has no newline
			"echp\x7fo x\nwaitpid_test",
			[]string{"x\n", "waitpid ok\n", "Shell: Process 2 exited with code 0\n"},
		},
		{
			"fault_test\n",
			[]string{"fault ok\n", "Shell: Process 2 exited with code 0\n"},
		},
	}

	for specIndex, spec := range specs {
		out, err := boot(t, testConfig("initproc", spec.stdin, nil))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v\noutput:\n%s", specIndex, err, out)
			continue
		}

		for _, exp := range spec.expOut {
			if !strings.Contains(out, exp) {
				t.Errorf("[spec %d] expected output to contain %q; got:\n%s", specIndex, exp, out)
			}
		}
	}
}

// image assembles a single segment program from emit.
func image(emit func(a *cpu.Assembler)) []byte {
	a := cpu.NewAssembler(user.TextBase)
	emit(a)
	return loader.NewBuilder(user.TextBase).
		AddSegment(loader.Segment{Vaddr: user.TextBase, Flags: elf.PF_R | elf.PF_X, Data: a.MustAssemble()}).
		Build()
}

func TestKmainShutdown(t *testing.T) {
	exitWith := func(code int64) []byte {
		return image(func(a *cpu.Assembler) {
			a.Li(cpu.A0, code)
			a.Li(cpu.A7, syscall.SysExit)
			a.Ecall()
		})
	}

	apps := loader.Table{
		"exit0": exitWith(0),
		"exit3": exitWith(3),
		"spin": image(func(a *cpu.Assembler) {
			a.Label("loop")
			a.J("loop")
		}),
		"breakpoint": image(func(a *cpu.Assembler) {
			a.Ebreak()
		}),
		"deadlock": image(func(a *cpu.Assembler) {
			a.Li(cpu.A0, 1)
			a.Li(cpu.A7, syscall.SysMutexCreate)
			a.Ecall()
			a.Mv(cpu.S0, cpu.A0)
			a.Li(cpu.A7, syscall.SysMutexLock)
			a.Ecall()
			a.Mv(cpu.A0, cpu.S0)
			a.Li(cpu.A7, syscall.SysMutexLock)
			a.Ecall()
		}),
		"badsyscall": image(func(a *cpu.Assembler) {
			a.Li(cpu.A7, 4242)
			a.Ecall()
			a.Li(cpu.A7, syscall.SysExit)
			a.Ecall()
		}),
	}

	specs := []struct {
		app      string
		maxTicks uint64
		expErr   *kernel.Error
		expOut   string
	}{
		{"exit0", 0, nil, "[kernel] Idle process exit with exit_code 0"},
		{"exit3", 0, task.ErrInitFailed, "[kernel] Idle process exit with exit_code 3"},
		{"spin", 100000, task.ErrTickBudget, ""},
		{"breakpoint", 0, cpu.ErrHalted, "[irq] unrecoverable error: unsupported trap"},
		{"deadlock", 0, task.ErrDeadlock, ""},
		// the unknown call returns -1, which becomes the exit code
		{"badsyscall", 0, task.ErrInitFailed, "unsupported syscall 4242 from pid 0"},
	}

	for specIndex, spec := range specs {
		cfg := testConfig(spec.app, "", apps)
		if spec.maxTicks != 0 {
			cfg.MaxTicks = spec.maxTicks
		}
		out, err := boot(t, cfg)
		if err != spec.expErr {
			t.Errorf("[spec %d] %s: expected error %v; got %v\noutput:\n%s", specIndex, spec.app, spec.expErr, err, out)
			continue
		}
		if !strings.Contains(out, spec.expOut) {
			t.Errorf("[spec %d] %s: expected output to contain %q; got:\n%s", specIndex, spec.app, spec.expOut, out)
		}
	}
}

func TestKmainErrors(t *testing.T) {
	if _, err := boot(t, testConfig("missing", "", loader.Table{})); err == nil || err.Message != "no such application" {
		t.Fatalf("expected a no such application error; got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MemorySize = 4096
	if err := Kmain(cfg); err != errMemorySize {
		t.Fatalf("expected errMemorySize; got %v", err)
	}

	cfg = DefaultConfig()
	cfg.InitProc = ""
	if err := Kmain(cfg); err != errNoInitProc {
		t.Fatalf("expected errNoInitProc; got %v", err)
	}
}
