package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types. The audit trail records who changed the detector's
// state, so that a cleared history or a stopped session is never silent.
const (
	AuditStartup        AuditEventType = "startup"
	AuditShutdown       AuditEventType = "shutdown"
	AuditDetectionStart AuditEventType = "detection_start"
	AuditDetectionStop  AuditEventType = "detection_stop"
	AuditHistoryCleared AuditEventType = "history_cleared"
	AuditReportExport   AuditEventType = "report_export"
	AuditConfigChange   AuditEventType = "config_change"
	AuditClientConnect  AuditEventType = "client_connect"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	Actor     string         `json:"actor,omitempty"`
	Action    string         `json:"action"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(stateDir(), "audit.log"),
		MaxSize:    50, // 50 MB
		MaxAge:     90, // 90 days
		MaxBackups: 10,
		Compress:   true,
		Component:  "clueless",
	}
}

// AuditLogger appends JSON lines to a rotated audit file.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	now     func() time.Time
	mu      sync.Mutex
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	return &AuditLogger{
		config:  cfg,
		rotator: rotator,
		now:     time.Now,
	}, nil
}

// Log writes an audit event. A nil AuditLogger discards events.
func (a *AuditLogger) Log(event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.Result == "" {
		event.Result = "success"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Record logs typ performed by actor. A non-nil err marks the event failed.
func (a *AuditLogger) Record(typ AuditEventType, actor, action string, err error, details map[string]any) error {
	ev := AuditEvent{
		EventType: typ,
		Actor:     actor,
		Action:    action,
		Details:   details,
	}
	if err != nil {
		ev.Result = "failure"
		ev.Error = err.Error()
	}
	return a.Log(ev)
}

// Close closes the audit file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.rotator.Close()
}

// Sync flushes the audit file.
func (a *AuditLogger) Sync() error {
	if a == nil {
		return nil
	}
	return a.rotator.Sync()
}

// Actor describes the local user for audit events.
func Actor() string {
	name := os.Getenv("USER")
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("%s(uid=%d)", name, os.Getuid())
}
