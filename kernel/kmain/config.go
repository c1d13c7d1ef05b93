package kmain

import (
	"encoding/json"
	"io"
	"os"
	"rvos/kernel"
	"rvos/kernel/loader"
)

// Config describes the machine Kmain boots. The exported scalar fields can
// be loaded from a JSON board file.
type Config struct {
	// MemorySize is the amount of RAM in bytes.
	MemorySize uint64 `json:"memory_size"`

	// ClockFreq is the number of hart ticks per second; TicksPerSec is the
	// preemption interrupt rate.
	ClockFreq   uint64 `json:"clock_freq"`
	TicksPerSec uint64 `json:"ticks_per_sec"`

	// MaxTicks stops the machine once the hart clock reaches it. Zero
	// means no limit.
	MaxTicks uint64 `json:"max_ticks"`

	// InitProc is the application started as the first process.
	InitProc string `json:"init_proc"`

	// LogLevel is used by the host launcher.
	LogLevel string `json:"log_level"`

	Stdin  io.Reader     `json:"-"`
	Stdout io.Writer     `json:"-"`
	Apps   loader.Loader `json:"-"`
}

// Defaults for a Config.
const (
	DefaultMemorySize = 8 << 20
	DefaultInitProc   = "initproc"
	DefaultLogLevel   = "info"

	// minMemorySize leaves room for the kernel image and a handful of
	// processes.
	minMemorySize = 1 << 20
)

var (
	errConfigOpen   = &kernel.Error{Module: "kmain", Message: "cannot open config file"}
	errConfigDecode = &kernel.Error{Module: "kmain", Message: "cannot decode config file"}
	errMemorySize   = &kernel.Error{Module: "kmain", Message: "memory size is too small or not page aligned"}
	errNoInitProc   = &kernel.Error{Module: "kmain", Message: "init process name is empty"}
)

// DefaultConfig returns the standard board.
func DefaultConfig() Config {
	return Config{
		MemorySize: DefaultMemorySize,
		InitProc:   DefaultInitProc,
		LogLevel:   DefaultLogLevel,
	}
}

// LoadConfig decodes the JSON board file at path into cfg. Fields missing
// from the file keep their current value.
func LoadConfig(path string, cfg *Config) *kernel.Error {
	f, err := os.Open(path)
	if err != nil {
		return errConfigOpen
	}
	defer f.Close()

	if err = json.NewDecoder(f).Decode(cfg); err != nil {
		return errConfigDecode
	}
	return nil
}

// validate fills unset fields with their defaults and checks the rest.
func (cfg *Config) validate() *kernel.Error {
	if cfg.MemorySize == 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	if cfg.MemorySize < minMemorySize || cfg.MemorySize%4096 != 0 {
		return errMemorySize
	}
	if cfg.InitProc == "" {
		return errNoInitProc
	}
	return nil
}
