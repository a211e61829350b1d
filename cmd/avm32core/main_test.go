package main

import "testing"

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, code := parseFlags([]string{})
	if exit {
		t.Fatalf("unexpected exit with code %d", code)
	}

	defaults := DefaultConfig()
	if cfg.MemoryBytes != defaults.MemoryBytes {
		t.Errorf("MemoryBytes = %d, want %d", cfg.MemoryBytes, defaults.MemoryBytes)
	}
	if cfg.Verbosity != defaults.Verbosity {
		t.Errorf("Verbosity = %d, want %d", cfg.Verbosity, defaults.Verbosity)
	}
	if cfg.MetricsAddr != defaults.MetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, defaults.MetricsAddr)
	}
	if cfg.Metrics {
		t.Error("Metrics should be false by default")
	}
	if cfg.KernelPath != "" || cfg.BundlePath != "" {
		t.Errorf("KernelPath/BundlePath should default empty, got %q/%q", cfg.KernelPath, cfg.BundlePath)
	}
}

func TestParseFlagsAllFlags(t *testing.T) {
	args := []string{
		"-kernel", "/tmp/kernel.elf",
		"-bundle", "/tmp/bundle.bin",
		"-datadir", "/tmp/avm32data",
		"-memory", "1048576",
		"-verbosity", "4",
		"-metrics",
		"-metrics.addr", ":9191",
	}

	cfg, exit, _ := parseFlags(args)
	if exit {
		t.Fatal("unexpected exit")
	}

	if cfg.KernelPath != "/tmp/kernel.elf" {
		t.Errorf("KernelPath = %q, want /tmp/kernel.elf", cfg.KernelPath)
	}
	if cfg.BundlePath != "/tmp/bundle.bin" {
		t.Errorf("BundlePath = %q, want /tmp/bundle.bin", cfg.BundlePath)
	}
	if cfg.DataDir != "/tmp/avm32data" {
		t.Errorf("DataDir = %q, want /tmp/avm32data", cfg.DataDir)
	}
	if cfg.MemoryBytes != 1048576 {
		t.Errorf("MemoryBytes = %d, want 1048576", cfg.MemoryBytes)
	}
	if cfg.Verbosity != 4 {
		t.Errorf("Verbosity = %d, want 4", cfg.Verbosity)
	}
	if !cfg.Metrics {
		t.Error("Metrics should be true")
	}
	if cfg.MetricsAddr != ":9191" {
		t.Errorf("MetricsAddr = %q, want :9191", cfg.MetricsAddr)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	cfg, exit, code := parseFlags([]string{"-version"})
	_ = cfg
	if !exit || code != 0 {
		t.Fatalf("exit=%v code=%d, want exit=true code=0", exit, code)
	}
}

func TestParseFlagsInvalidFlag(t *testing.T) {
	_, exit, code := parseFlags([]string{"-notaflag"})
	if !exit || code != 2 {
		t.Fatalf("exit=%v code=%d, want exit=true code=2", exit, code)
	}
}

func TestConfigValidateRequiresKernelAndBundle(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with no kernel/bundle set")
	}

	cfg.KernelPath = "/tmp/kernel.elf"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with no bundle set")
	}

	cfg.BundlePath = "/tmp/bundle.bin"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}
}

func TestOpenStorageFallsBackToMapStorage(t *testing.T) {
	storage, closeFn, err := openStorage("")
	if err != nil {
		t.Fatalf("openStorage: %s", err)
	}
	defer closeFn()

	storage.Set("k", []byte("v"))
	if v, ok := storage.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
}
