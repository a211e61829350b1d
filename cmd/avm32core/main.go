// Command avm32core is the entry point for running a transaction bundle
// against an AVM32 kernel image.
//
// Usage:
//
//	avm32core [flags]
//
// Flags:
//
//	--kernel     Path to the kernel ELF image to boot (required)
//	--bundle     Path to an encoded transaction bundle (required)
//	--datadir    Persistent LevelDB storage directory (default: in-memory)
//	--memory     Guest physical memory size in bytes (default: 16 MiB)
//	--verbosity  Log level 0-4 (default: 2, info)
//	--metrics    Serve Prometheus metrics on --metrics.addr
//	--version    Print version and exit
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/avm-core/avm32/pkg/bootloader"
	"github.com/avm-core/avm32/pkg/bundle"
	"github.com/avm-core/avm32/pkg/host"
	"github.com/avm-core/avm32/pkg/kernel"
	"github.com/avm-core/avm32/pkg/log"
	"github.com/avm-core/avm32/pkg/metrics"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := log.New(verbosityToLevel(cfg.Verbosity))
	log.SetDefault(logger)

	logger.Info("avm32core starting",
		"version", version, "kernel", cfg.KernelPath, "bundle", cfg.BundlePath,
		"memory_bytes", cfg.MemoryBytes, "datadir", cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	kernelELF, err := os.ReadFile(cfg.KernelPath)
	if err != nil {
		logger.Error("read kernel image", "err", err)
		return 1
	}
	bundleBytes, err := os.ReadFile(cfg.BundlePath)
	if err != nil {
		logger.Error("read bundle", "err", err)
		return 1
	}
	b, err := bundle.Decode(bundleBytes)
	if err != nil {
		logger.Error("decode bundle", "err", err)
		return 1
	}

	storage, closeStorage, err := openStorage(cfg.DataDir)
	if err != nil {
		logger.Error("open storage", "err", err)
		return 1
	}
	defer closeStorage()

	if cfg.Metrics {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	state := host.NewState(storage)
	bl := bootloader.New(cfg.MemoryBytes)

	result, err := bl.ExecuteBundle(kernelELF, b, state, kernel.DefaultConfig)
	if err != nil {
		logger.Error("execute bundle", "err", err)
		return 1
	}

	for i, r := range result.Receipts {
		fmt.Printf("--- receipt %d ---\n%s", i, r.String())
	}
	logger.Info("bundle execution complete", "receipts", len(result.Receipts))
	return 0
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (Config, bool, int) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("avm32core %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *Config) *flagSet {
	fs := newCustomFlagSet("avm32core")
	fs.StringVar(&cfg.KernelPath, "kernel", cfg.KernelPath, "path to the kernel ELF image to boot")
	fs.StringVar(&cfg.BundlePath, "bundle", cfg.BundlePath, "path to an encoded transaction bundle")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "persistent LevelDB storage directory (default: in-memory)")
	fs.IntVar(&cfg.MemoryBytes, "memory", cfg.MemoryBytes, "guest physical memory size in bytes")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-4 (0=silent, 4=debug)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "serve Prometheus metrics")
	fs.StringVar(&cfg.MetricsAddr, "metrics.addr", cfg.MetricsAddr, "metrics listen address")
	return fs
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError + 4 // effectively silent; slog has no "off" level
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// openStorage opens a LevelDB-backed Storage at dir, or falls back to an
// in-memory MapStorage when dir is empty (avm32core has no durability
// requirement for a single bundle run).
func openStorage(dir string) (host.Storage, func() error, error) {
	if dir == "" {
		return host.NewMapStorage(), func() error { return nil }, nil
	}
	ldb, err := host.OpenLevelDBStorage(dir)
	if err != nil {
		return nil, nil, err
	}
	return ldb, ldb.Close, nil
}
