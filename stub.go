package main

import (
	"flag"
	"log/slog"
	"os"
	"rvos/kernel/kmain"
	"strings"
)

// main boots the machine on the host terminal. Flags override the values
// loaded from the optional board file.
func main() {
	cfg := kmain.DefaultConfig()

	var (
		configPath = flag.String("config", "", "JSON board file")
		memSize    = flag.Uint64("mem", 0, "RAM size in bytes")
		initProc   = flag.String("init", "", "name of the first process")
		maxTicks   = flag.Uint64("max-ticks", 0, "stop after this many hart ticks (0 = no limit)")
		logLevel   = flag.String("log-level", "", "launcher log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *configPath != "" {
		if err := kmain.LoadConfig(*configPath, &cfg); err != nil {
			slog.Error("loading board config", "path", *configPath, "err", err)
			os.Exit(1)
		}
	}
	if *memSize != 0 {
		cfg.MemorySize = *memSize
	}
	if *initProc != "" {
		cfg.InitProc = *initProc
	}
	if *maxTicks != 0 {
		cfg.MaxTicks = *maxTicks
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	cfg.Stdin = os.Stdin
	cfg.Stdout = os.Stdout

	slog.Debug("booting", "mem", cfg.MemorySize, "init", cfg.InitProc, "max_ticks", cfg.MaxTicks)
	if err := kmain.Kmain(cfg); err != nil {
		slog.Error("machine stopped", "module", err.Module, "err", err.Message)
		os.Exit(1)
	}
	slog.Debug("machine powered off")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
