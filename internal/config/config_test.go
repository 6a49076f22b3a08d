package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clueless/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	mc := cfg.MonitorConfig()
	if mc.ClipboardInterval != 500*time.Millisecond {
		t.Errorf("expected clipboard interval 500ms, got %v", mc.ClipboardInterval)
	}
	if mc.ProcessInterval != 2*time.Second {
		t.Errorf("expected process interval 2s, got %v", mc.ProcessInterval)
	}
	if cfg.DashboardInterval() != 2*time.Second {
		t.Errorf("expected dashboard interval 2s, got %v", cfg.DashboardInterval())
	}
	if !strings.Contains(cfg.IPC.SocketPath, "clueless") {
		t.Errorf("socket path should contain clueless: %s", cfg.IPC.SocketPath)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "clueless") {
		t.Errorf("config path should contain clueless: %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults: %v", err)
	}
	if cfg.Detection.MemoryIntervalMs != 5000 {
		t.Errorf("expected default memory interval, got %d", cfg.Detection.MemoryIntervalMs)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[detection]
auto_start = true
process_interval_ms = 1500
memory_scan = false

[signatures]
ai_keywords = ["my-assistant"]

[overlay]
kind = "none"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Detection.AutoStart || cfg.Detection.MemoryScan {
		t.Errorf("switches not applied: %+v", cfg.Detection)
	}
	if cfg.Detection.ProcessIntervalMs != 1500 {
		t.Errorf("expected 1500, got %d", cfg.Detection.ProcessIntervalMs)
	}
	// Unset fields keep defaults.
	if cfg.Detection.TypingIntervalMs != 1000 {
		t.Errorf("expected default typing interval, got %d", cfg.Detection.TypingIntervalMs)
	}
	if cfg.Overlay.Kind != "none" {
		t.Errorf("expected overlay none, got %s", cfg.Overlay.Kind)
	}

	set := cfg.SignatureSet()
	found := false
	for _, k := range set.AIKeywords {
		if k == "my-assistant" {
			found = true
		}
	}
	if !found {
		t.Error("configured keyword missing from signature set")
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"config.json": `{"version": 1, "detection": {"hidden_interval_ms": 4000}}`,
		"config.yaml": "version: 1\ndetection:\n  hidden_interval_ms: 4000\n",
		"config.conf": "version = 1\n[detection]\nhidden_interval_ms = 4000\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Detection.HiddenIntervalMs != 4000 {
				t.Errorf("expected 4000, got %d", cfg.Detection.HiddenIntervalMs)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("this is not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[detection]\nclipboard_interval_ms = 1\n\n[overlay]\nkind = \"hologram\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, field := range []string{"detection.clipboard_interval_ms", "overlay.kind"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s: %v", field, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 99 }, "version"},
		{"memory lines", func(c *Config) { c.Detection.MemoryLines = 0 }, "detection.memory_lines"},
		{"timeout", func(c *Config) { c.Detection.CommandTimeoutSec = 0 }, "detection.command_timeout_sec"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"file output", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"permissions", func(c *Config) { c.IPC.Permissions = "rw" }, "ipc.permissions"},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "nowhere" }, "metrics.addr"},
		{"notify rate", func(c *Config) { c.Overlay.NotifyPerMinute = -1 }, "overlay.notify_per_minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should mention %s: %v", tt.field, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.IPC.Enabled = false
	cfg.IPC.SocketPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled IPC needs no socket: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CLUELESS_LOG_LEVEL", "debug")
	t.Setenv("CLUELESS_SOCKET_PATH", "/tmp/test.sock")
	t.Setenv("CLUELESS_METRICS_ADDR", "127.0.0.1:9999")
	t.Setenv("CLUELESS_AUTO_START", "true")
	t.Setenv("CLUELESS_MEMORY_SCAN", "not-a-bool")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/test.sock" {
		t.Errorf("socket override not applied: %s", cfg.IPC.SocketPath)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9999" {
		t.Errorf("metrics override not applied: %+v", cfg.Metrics)
	}
	if !cfg.Detection.AutoStart {
		t.Error("auto start override not applied")
	}
	if !cfg.Detection.MemoryScan {
		t.Error("unparseable bool should be ignored")
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLUELESS_OVERLAY", "")
	os.Unsetenv("CLUELESS_OVERLAY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CLUELESS_OVERLAY=none\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Overlay.Kind != "none" {
		t.Errorf("expected .env to set overlay none, got %s", cfg.Overlay.Kind)
	}
}

func TestDotEnvMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CLUELESS_OVERLAY=\"none\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(dir, "config.toml")); err == nil {
		t.Fatal("expected error for unterminated quote in .env")
	}
}

func TestRestartRequired(t *testing.T) {
	base := DefaultConfig()
	if RestartRequired(base, base.Clone()) {
		t.Error("identical configs should not require restart")
	}

	cfg := base.Clone()
	cfg.Logging.Level = "debug"
	if RestartRequired(base, cfg) {
		t.Error("log level applies live")
	}

	cfg = base.Clone()
	cfg.Signatures.AIKeywords = append(cfg.Signatures.AIKeywords, "interview-copilot")
	if !RestartRequired(base, cfg) {
		t.Error("signature change should require restart")
	}

	cfg = base.Clone()
	cfg.Detection.TypingSeed++
	if !RestartRequired(base, cfg) {
		t.Error("detection change should require restart")
	}

	if RestartRequired(nil, cfg) {
		t.Error("first load is not a restart")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.toml", "out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Detection.AutoStart = true
			cfg.Signatures.AIEndpoints = []string{"llm.example.com"}

			path := filepath.Join(dir, name)
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("expected 0600, got %v", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !loaded.Detection.AutoStart {
				t.Error("auto start lost in round trip")
			}
			if len(loaded.Signatures.AIEndpoints) != 1 || loaded.Signatures.AIEndpoints[0] != "llm.example.com" {
				t.Errorf("endpoints lost in round trip: %v", loaded.Signatures.AIEndpoints)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	cfg := DefaultConfig()
	for format, want := range map[string]string{
		"toml": "[detection]",
		"json": `"detection": {`,
		"yaml": "detection:",
	} {
		data, err := Marshal(cfg, format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !strings.Contains(string(data), want) {
			t.Errorf("%s output missing %q", format, want)
		}
	}
	if _, err := Marshal(cfg, "ini"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/tmp/x.toml"); got != "/tmp/x.toml" {
		t.Errorf("explicit path changed: %s", got)
	}
	if got := ResolvePath(""); got == "" {
		t.Error("empty path should resolve")
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	_, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	_, created, err = LoadOrCreate(path)
	if err != nil || created {
		t.Fatalf("expected load, got created=%v err=%v", created, err)
	}
}

func TestLoggingOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	opts, err := cfg.LoggingOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Level != logging.LevelWarn || opts.Format != logging.FormatJSON {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.MaxSize != 100 || opts.MaxAge != 30 {
		t.Errorf("expected 100 MB and 30 days, got %d and %d", opts.MaxSize, opts.MaxAge)
	}

	cfg.Logging.Level = "loud"
	if _, err := cfg.LoggingOptions(); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signatures.AIKeywords = []string{"a"}
	clone := cfg.Clone()
	clone.Signatures.AIKeywords[0] = "b"
	clone.Detection.AutoStart = true
	if cfg.Signatures.AIKeywords[0] != "a" || cfg.Detection.AutoStart {
		t.Error("clone shares state with original")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.IPC.SocketPath = filepath.Join(dir, "run", "clueless.sock")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "clueless.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, sub := range []string{"run", "logs"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("%s not created", sub)
		}
	}
}

func TestLoaderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[detection]\nauto_start = false\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path, nil)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(_, new *Config) {
		select {
		case changed <- new:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[detection]\nauto_start = true\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if !cfg.Detection.AutoStart {
			t.Error("reloaded config should have auto_start")
		}
		if !loader.Config().Detection.AutoStart {
			t.Error("loader should hold the new config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLoaderKeepsConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("version = 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(path, nil)
	defer loader.Close()
	before, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("version = 7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	loader.reload()

	if loader.Config() != before {
		t.Error("invalid reload replaced the configuration")
	}
	select {
	case err := <-loader.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("unexpected error %v", err)
		}
	default:
		t.Error("expected an error on the channel")
	}
}
