// Package config handles configuration loading, validation, and management for clueless.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"clueless/internal/logging"
	"clueless/internal/monitor"
	"clueless/internal/signatures"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Detection configures the monitoring loop.
	Detection DetectionConfig `toml:"detection" json:"detection" yaml:"detection"`

	// Signatures extends the built-in keyword lists.
	Signatures SignaturesConfig `toml:"signatures" json:"signatures" yaml:"signatures"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics configuration for the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Overlay configuration for the status display.
	Overlay OverlayConfig `toml:"overlay" json:"overlay" yaml:"overlay"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex
}

// DetectionConfig holds poller cadences and scan limits.
type DetectionConfig struct {
	// AutoStart begins monitoring as soon as the daemon starts.
	AutoStart bool `toml:"auto_start" json:"auto_start" yaml:"auto_start"`

	ClipboardIntervalMs int `toml:"clipboard_interval_ms" json:"clipboard_interval_ms" yaml:"clipboard_interval_ms"`
	TypingIntervalMs    int `toml:"typing_interval_ms" json:"typing_interval_ms" yaml:"typing_interval_ms"`
	MemoryIntervalMs    int `toml:"memory_interval_ms" json:"memory_interval_ms" yaml:"memory_interval_ms"`
	HiddenIntervalMs    int `toml:"hidden_interval_ms" json:"hidden_interval_ms" yaml:"hidden_interval_ms"`
	ProcessIntervalMs   int `toml:"process_interval_ms" json:"process_interval_ms" yaml:"process_interval_ms"`

	// DashboardIntervalMs is the dashboard poll period.
	DashboardIntervalMs int `toml:"dashboard_interval_ms" json:"dashboard_interval_ms" yaml:"dashboard_interval_ms"`

	// MemoryLines bounds the strings read from each process's memory.
	MemoryLines int `toml:"memory_lines" json:"memory_lines" yaml:"memory_lines"`

	// CommandTimeoutSec bounds each external command.
	CommandTimeoutSec int `toml:"command_timeout_sec" json:"command_timeout_sec" yaml:"command_timeout_sec"`

	MemoryScan  bool `toml:"memory_scan" json:"memory_scan" yaml:"memory_scan"`
	HiddenScan  bool `toml:"hidden_scan" json:"hidden_scan" yaml:"hidden_scan"`
	ProcessScan bool `toml:"process_scan" json:"process_scan" yaml:"process_scan"`

	// ResolveEndpoints resolves AI service hosts so numeric netstat output
	// can be matched.
	ResolveEndpoints bool `toml:"resolve_endpoints" json:"resolve_endpoints" yaml:"resolve_endpoints"`

	// TypingSeed seeds the simulated typing source. Zero picks a random seed.
	TypingSeed uint64 `toml:"typing_seed" json:"typing_seed" yaml:"typing_seed"`
}

// SignaturesConfig lists additions to the built-in signature lists.
type SignaturesConfig struct {
	AIKeywords       []string `toml:"ai_keywords" json:"ai_keywords" yaml:"ai_keywords"`
	SystemDenyList   []string `toml:"system_deny_list" json:"system_deny_list" yaml:"system_deny_list"`
	MemorySignatures []string `toml:"memory_signatures" json:"memory_signatures" yaml:"memory_signatures"`
	ScanExclusions   []string `toml:"scan_exclusions" json:"scan_exclusions" yaml:"scan_exclusions"`
	AIEndpoints      []string `toml:"ai_endpoints" json:"ai_endpoints" yaml:"ai_endpoints"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket (a loopback address on Windows).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the Unix socket mode (e.g., "0600").
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum number of concurrent clients.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the idle timeout per connection.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" json:"addr" yaml:"addr"`
}

// OverlayConfig selects the status display.
type OverlayConfig struct {
	// Kind is "console", "notify" or "none".
	Kind string `toml:"kind" json:"kind" yaml:"kind"`

	// NotifyPerMinute caps desktop notifications.
	NotifyPerMinute int `toml:"notify_per_minute" json:"notify_per_minute" yaml:"notify_per_minute"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to gzip rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	det := monitor.DefaultConfig()
	return &Config{
		Version: Version,
		Detection: DetectionConfig{
			AutoStart:           false,
			ClipboardIntervalMs: int(det.ClipboardInterval / time.Millisecond),
			TypingIntervalMs:    int(det.TypingInterval / time.Millisecond),
			MemoryIntervalMs:    int(det.MemoryInterval / time.Millisecond),
			HiddenIntervalMs:    int(det.HiddenInterval / time.Millisecond),
			ProcessIntervalMs:   int(det.ProcessInterval / time.Millisecond),
			DashboardIntervalMs: 2000,
			MemoryLines:         det.MemoryLines,
			CommandTimeoutSec:   int(det.CommandTimeout / time.Second),
			MemoryScan:          det.MemoryScan,
			HiddenScan:          det.HiddenScan,
			ProcessScan:         det.ProcessScan,
			ResolveEndpoints:    det.ResolveEndpoints,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     DefaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 16,
			TimeoutSec:     300,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9477",
		},
		Overlay: OverlayConfig{
			Kind:            "console",
			NotifyPerMinute: 6,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "clueless.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path, or from the first config file in the
// standard locations when path is empty. A missing file yields the defaults.
// A .env file next to the config, or in the working directory, is loaded
// before environment overrides are applied; variables already set win.
// Supports TOML, JSON, and YAML formats based on file extension. The result
// is validated.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}
	return readValidated(path)
}

// ResolvePath returns path, or the file Load would read when path is empty.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if path = FindConfigFile(); path != "" {
		return path
	}
	return ConfigPath()
}

// loadDotEnv loads the first .env file that exists. Missing files are not an
// error; a malformed one is.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.IPC.SocketPath)}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:    c.Version,
		Detection:  c.Detection,
		Signatures: c.Signatures,
		IPC:        c.IPC,
		Metrics:    c.Metrics,
		Overlay:    c.Overlay,
		Logging:    c.Logging,
	}
	clone.Signatures.AIKeywords = append([]string{}, c.Signatures.AIKeywords...)
	clone.Signatures.SystemDenyList = append([]string{}, c.Signatures.SystemDenyList...)
	clone.Signatures.MemorySignatures = append([]string{}, c.Signatures.MemorySignatures...)
	clone.Signatures.ScanExclusions = append([]string{}, c.Signatures.ScanExclusions...)
	clone.Signatures.AIEndpoints = append([]string{}, c.Signatures.AIEndpoints...)
	return clone
}

// MonitorConfig converts the detection section for the monitoring loop.
func (c *Config) MonitorConfig() monitor.Config {
	d := c.Detection
	return monitor.Config{
		ClipboardInterval: ms(d.ClipboardIntervalMs),
		TypingInterval:    ms(d.TypingIntervalMs),
		MemoryInterval:    ms(d.MemoryIntervalMs),
		HiddenInterval:    ms(d.HiddenIntervalMs),
		ProcessInterval:   ms(d.ProcessIntervalMs),
		MemoryLines:       d.MemoryLines,
		CommandTimeout:    time.Duration(d.CommandTimeoutSec) * time.Second,
		MemoryScan:        d.MemoryScan,
		HiddenScan:        d.HiddenScan,
		ProcessScan:       d.ProcessScan,
		ResolveEndpoints:  d.ResolveEndpoints,
	}
}

// DashboardInterval returns the dashboard poll period.
func (c *Config) DashboardInterval() time.Duration {
	return ms(c.Detection.DashboardIntervalMs)
}

// RestartRequired reports whether moving from old to cfg changes a section
// that is only read at startup. Logging applies live.
func RestartRequired(old, cfg *Config) bool {
	if old == nil || cfg == nil {
		return false
	}
	return old.Detection != cfg.Detection || old.IPC != cfg.IPC ||
		old.Metrics != cfg.Metrics || old.Overlay != cfg.Overlay ||
		!old.Signatures.equal(cfg.Signatures)
}

func (s SignaturesConfig) equal(o SignaturesConfig) bool {
	return slices.Equal(s.AIKeywords, o.AIKeywords) &&
		slices.Equal(s.SystemDenyList, o.SystemDenyList) &&
		slices.Equal(s.MemorySignatures, o.MemorySignatures) &&
		slices.Equal(s.ScanExclusions, o.ScanExclusions) &&
		slices.Equal(s.AIEndpoints, o.AIEndpoints)
}

// SignatureSet returns the built-in lists extended with the configured
// additions.
func (c *Config) SignatureSet() *signatures.Set {
	s := c.Signatures
	return signatures.Default().Extend(signatures.Extra{
		AIKeywords:       s.AIKeywords,
		SystemDenyList:   s.SystemDenyList,
		MemorySignatures: s.MemorySignatures,
		ScanExclusions:   s.ScanExclusions,
		AIEndpoints:      s.AIEndpoints,
	})
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() (*logging.Config, error) {
	l := c.Logging
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSize:    int64(l.MaxSizeMB),
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		Component:  "clueless",
	}, nil
}

// ApplyEnvOverrides applies CLUELESS_* environment variables on top of the
// file values. Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Logging overrides
	if v := os.Getenv("CLUELESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CLUELESS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CLUELESS_LOG_PATH"); v != "" {
		c.Logging.Output = "file"
		c.Logging.FilePath = v
	}

	// IPC overrides
	if v := os.Getenv("CLUELESS_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}

	// Metrics overrides; setting an address turns the endpoint on.
	if v := os.Getenv("CLUELESS_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}

	if v := os.Getenv("CLUELESS_OVERLAY"); v != "" {
		c.Overlay.Kind = v
	}

	// Detection overrides
	if b, ok := envBool("CLUELESS_AUTO_START"); ok {
		c.Detection.AutoStart = b
	}
	if b, ok := envBool("CLUELESS_MEMORY_SCAN"); ok {
		c.Detection.MemoryScan = b
	}
	if b, ok := envBool("CLUELESS_RESOLVE_ENDPOINTS"); ok {
		c.Detection.ResolveEndpoints = b
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// copyFrom replaces every section with src's.
func (c *Config) copyFrom(src *Config) {
	c.Version = src.Version
	c.Detection = src.Detection
	c.Signatures = src.Signatures
	c.IPC = src.IPC
	c.Metrics = src.Metrics
	c.Overlay = src.Overlay
	c.Logging = src.Logging
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
