// Package overlay shows the detector's status to the person at the machine.
//
// The Console overlay writes one line per status change and runs everywhere.
// The Notifier posts desktop notifications when the threat level changes.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"clueless/internal/threat"
)

// ErrUnsupported is returned by NewNotifier where desktop notifications are
// not available.
var ErrUnsupported = errors.New("overlay: desktop notifications not supported on this platform")

// Status is what the overlay displays.
type Status struct {
	IsMonitoring        bool         `json:"isMonitoring" yaml:"isMonitoring"`
	IsClean             bool         `json:"isClean" yaml:"isClean"`
	ThreatLevel         threat.Level `json:"threatLevel" yaml:"threatLevel"`
	SuspiciousProcesses int          `json:"suspiciousProcesses" yaml:"suspiciousProcesses"`
	TotalAlerts         int          `json:"totalAlerts" yaml:"totalAlerts"`
	RiskScore           int          `json:"riskScore" yaml:"riskScore"`
}

// String renders s on one line.
func (s Status) String() string {
	state := "idle"
	if s.IsMonitoring {
		state = "monitoring"
	}
	return fmt.Sprintf("[clueless] %s | threat %s | risk %d/%d | processes %d | alerts %d",
		state, s.ThreatLevel, s.RiskScore, threat.MaxRiskScore, s.SuspiciousProcesses, s.TotalAlerts)
}

// Overlay is a status display.
type Overlay interface {
	Show() error
	Hide() error
	Update(s Status) error
	Visible() bool
	Close() error
}

// Kinds accepted by New.
const (
	KindConsole = "console"
	KindNotify  = "notify"
	KindNone    = "none"
)

// New builds the overlay named by kind. KindNone returns a nil Overlay.
// KindNotify falls back to the console where notifications are unavailable.
func New(kind string, notifyPerMinute int, logger *slog.Logger) (Overlay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch kind {
	case "", KindConsole:
		return NewConsole(os.Stderr, logger), nil
	case KindNotify:
		n, err := NewNotifier(notifyPerMinute, logger)
		if err != nil {
			logger.Warn("desktop notifications unavailable, using console overlay", "error", err)
			return NewConsole(os.Stderr, logger), nil
		}
		return n, nil
	case KindNone:
		return nil, nil
	}
	return nil, fmt.Errorf("overlay: unknown kind %q", kind)
}

// Console prints status lines to a writer while visible.
type Console struct {
	w      io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	visible bool
	last    string
}

// NewConsole creates a hidden Console overlay.
func NewConsole(w io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{w: w, logger: logger.With("component", "overlay")}
}

func (c *Console) Show() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = true
	c.logger.Debug("overlay shown")
	return nil
}

func (c *Console) Hide() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
	c.last = ""
	c.logger.Debug("overlay hidden")
	return nil
}

// Update prints s if the overlay is visible and s differs from the last
// printed status.
func (c *Console) Update(s Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visible {
		return nil
	}
	line := s.String()
	if line == c.last {
		return nil
	}
	c.last = line
	_, err := fmt.Fprintln(c.w, line)
	return err
}

func (c *Console) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Console) Close() error { return nil }
