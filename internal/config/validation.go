package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"clueless/internal/overlay"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Intervals below this would turn the pollers into busy loops.
const minIntervalMs = 50

var permissionsPattern = regexp.MustCompile(`^0[0-7]{3}$`)

// ValidateConfig checks every section and reports all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDetection(&c.Detection)...)
	errs = append(errs, validateOverlay(&c.Overlay)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDetection(d *DetectionConfig) ValidationErrors {
	var errs ValidationErrors

	intervals := []struct {
		field string
		value int
	}{
		{"detection.clipboard_interval_ms", d.ClipboardIntervalMs},
		{"detection.typing_interval_ms", d.TypingIntervalMs},
		{"detection.memory_interval_ms", d.MemoryIntervalMs},
		{"detection.hidden_interval_ms", d.HiddenIntervalMs},
		{"detection.process_interval_ms", d.ProcessIntervalMs},
		{"detection.dashboard_interval_ms", d.DashboardIntervalMs},
	}
	for _, iv := range intervals {
		if iv.value < minIntervalMs {
			errs = append(errs, *RangeError(iv.field, minIntervalMs, "unbounded"))
		}
	}

	if d.MemoryLines < 1 || d.MemoryLines > 100000 {
		errs = append(errs, *RangeError("detection.memory_lines", 1, 100000))
	}
	if d.CommandTimeoutSec < 1 || d.CommandTimeoutSec > 300 {
		errs = append(errs, *RangeError("detection.command_timeout_sec", 1, 300))
	}
	return errs
}

func validateOverlay(o *OverlayConfig) ValidationErrors {
	var errs ValidationErrors

	switch o.Kind {
	case overlay.KindConsole, overlay.KindNotify, overlay.KindNone:
	default:
		errs = append(errs, ValidationError{
			Field:   "overlay.kind",
			Message: fmt.Sprintf("invalid overlay: %s (valid: console, notify, none)", o.Kind),
		})
	}
	if o.NotifyPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "overlay.notify_per_minute",
			Message: "rate cannot be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	case "":
		errs = append(errs, *RequiredFieldError("logging.output"))
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}

	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		})
	}
	if i.Permissions != "" && !permissionsPattern.MatchString(i.Permissions) {
		errs = append(errs, ValidationError{
			Field:   "ipc.permissions",
			Message: fmt.Sprintf("invalid permissions format: %s (expected octal like 0600)", i.Permissions),
		})
	}
	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "max connections must be at least 1",
		})
	}
	if i.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors
	if !m.Enabled {
		return errs
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "metrics.addr",
			Message: fmt.Sprintf("invalid listen address %q: %v", m.Addr, err),
		})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
