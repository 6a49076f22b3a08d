// Package dashboard turns detection reports into the running status shown to
// operators: a risk score, an alert feed, and the overlay status.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"clueless/internal/activity"
	"clueless/internal/inspect"
	"clueless/internal/overlay"
	"clueless/internal/report"
	"clueless/internal/threat"
)

const (
	// DefaultInterval is how often the dashboard polls while monitoring.
	DefaultInterval = 2000 * time.Millisecond
	// RecentWindow is how old an event may be and still raise an alert.
	RecentWindow = 10 * time.Second
	// FeedSize is the number of alerts kept in the feed.
	FeedSize = 10
)

// AlertKind grades an alert.
type AlertKind string

const (
	AlertInfo    AlertKind = "info"
	AlertWarning AlertKind = "warning"
	AlertDanger  AlertKind = "danger"
)

// Alert is one entry of the feed.
type Alert struct {
	Type      AlertKind `json:"type" yaml:"type"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Snapshot is the status broadcast after every poll.
type Snapshot struct {
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
	Status       overlay.Status `json:"status" yaml:"status"`
	RecentEvents int            `json:"recentEvents" yaml:"recentEvents"`
	Alerts       []Alert        `json:"alerts" yaml:"alerts"`
}

// Detector is the part of the monitor the dashboard reads.
type Detector interface {
	Report() report.Report
	Monitoring() bool
}

// Options configure a Dashboard. Overlay, Inspector and Broadcast may be nil.
type Options struct {
	Detector  Detector
	Overlay   overlay.Overlay
	Inspector inspect.Inspector
	Broadcast func(Snapshot)
	Interval  time.Duration
	Logger    *slog.Logger
}

// Dashboard polls a Detector and maintains the alert feed.
type Dashboard struct {
	det       Detector
	ov        overlay.Overlay
	inspector inspect.Inspector
	broadcast func(Snapshot)
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	alerts      []Alert // newest first
	totalAlerts int
	alerted     map[string]bool
	lastClip    int
	lastTyping  int
	critical    bool
	status      overlay.Status
	last        report.Report
}

// New creates a Dashboard.
func New(opts Options) *Dashboard {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dashboard{
		det:       opts.Detector,
		ov:        opts.Overlay,
		inspector: opts.Inspector,
		broadcast: opts.Broadcast,
		interval:  opts.Interval,
		logger:    opts.Logger.With("component", "dashboard"),
		now:       time.Now,
		alerted:   make(map[string]bool),
		status:    overlay.Status{IsClean: true},
	}
}

// Run polls until ctx is done. Polls are skipped while the detector is idle.
func (d *Dashboard) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if d.det.Monitoring() {
				d.Poll()
			}
		}
	}
}

// Poll reads one report, updates the feed and pushes the new status.
func (d *Dashboard) Poll() Snapshot {
	r := d.det.Report()

	d.mu.Lock()
	d.last = r
	d.alertReport(r)
	recent := r.Recent(RecentWindow)
	for _, ev := range recent {
		if d.alerted[ev.ID] {
			continue
		}
		d.alerted[ev.ID] = true
		d.addLocked(kindFor(ev), report.Describe(ev))
	}

	d.status = overlay.Status{
		IsMonitoring:        r.Monitoring,
		IsClean:             r.OverallThreatLevel == threat.LevelLow,
		ThreatLevel:         r.OverallThreatLevel,
		SuspiciousProcesses: countProcesses(r.SuspiciousActivity),
		TotalAlerts:         d.totalAlerts,
		RiskScore:           r.RiskScore,
	}
	snap := Snapshot{
		Timestamp:    d.now(),
		Status:       d.status,
		RecentEvents: len(recent),
		Alerts:       d.alertsLocked(),
	}
	d.mu.Unlock()

	d.push(snap)
	return snap
}

// alertReport raises the aggregate alerts. Each fires when its count grows,
// not on every poll.
func (d *Dashboard) alertReport(r report.Report) {
	if n := r.ClipboardAnalysis.SuspiciousEntries; n > d.lastClip {
		d.addLocked(AlertDanger, fmt.Sprintf("Detected %d AI-generated clipboard entries", n))
	}
	d.lastClip = r.ClipboardAnalysis.SuspiciousEntries

	if n := r.TypingAnalysis.SuspiciousPatterns; n > d.lastTyping {
		d.addLocked(AlertWarning, fmt.Sprintf("Detected %d unnatural typing patterns", n))
	}
	d.lastTyping = r.TypingAnalysis.SuspiciousPatterns

	critical := r.OverallThreatLevel == threat.LevelCritical
	if critical && !d.critical {
		d.addLocked(AlertDanger, "CRITICAL: Multiple AI assistance indicators detected!")
	}
	d.critical = critical
}

func (d *Dashboard) push(snap Snapshot) {
	if d.ov != nil {
		if err := d.ov.Update(snap.Status); err != nil {
			d.logger.Warn("overlay update failed", "error", err)
		}
	}
	if d.broadcast != nil {
		d.broadcast(snap)
	}
}

// MonitoringStarted records the start of a session and shows the overlay.
func (d *Dashboard) MonitoringStarted() {
	d.AddAlert(AlertInfo, "Monitoring started successfully")
	if d.ov != nil {
		if err := d.ov.Show(); err != nil {
			d.logger.Warn("overlay show failed", "error", err)
		}
	}
}

// MonitoringStopped records the end of a session and hides the overlay.
func (d *Dashboard) MonitoringStopped() {
	d.AddAlert(AlertInfo, "Monitoring stopped")
	if d.ov != nil {
		if err := d.ov.Hide(); err != nil {
			d.logger.Warn("overlay hide failed", "error", err)
		}
	}
}

// Reset clears the feed and the counters derived from history. Use after the
// detector's history is cleared.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = nil
	d.totalAlerts = 0
	d.alerted = make(map[string]bool)
	d.lastClip, d.lastTyping = 0, 0
	d.critical = false
	d.status = overlay.Status{IsMonitoring: d.status.IsMonitoring, IsClean: true}
}

// AddAlert appends an alert to the feed.
func (d *Dashboard) AddAlert(kind AlertKind, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(kind, message)
}

func (d *Dashboard) addLocked(kind AlertKind, message string) {
	d.alerts = append([]Alert{{Type: kind, Message: message, Timestamp: d.now()}}, d.alerts...)
	if len(d.alerts) > FeedSize {
		d.alerts = d.alerts[:FeedSize]
	}
	d.totalAlerts++
}

// Alerts returns the feed, newest first.
func (d *Dashboard) Alerts() []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alertsLocked()
}

func (d *Dashboard) alertsLocked() []Alert {
	out := make([]Alert, len(d.alerts))
	copy(out, d.alerts)
	return out
}

// Status returns the status computed by the last poll.
func (d *Dashboard) Status() overlay.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// export is the document written by Export.
type export struct {
	Timestamp       time.Time           `json:"timestamp"`
	Alerts          []Alert             `json:"alerts"`
	DetectionReport report.Report       `json:"detectionReport"`
	SystemInfo      *inspect.SystemInfo `json:"systemInfo,omitempty"`
}

// Export writes the alert feed, a fresh detection report, and host details
// as indented JSON.
func (d *Dashboard) Export(ctx context.Context, w io.Writer) error {
	doc := export{
		Timestamp:       d.now(),
		Alerts:          d.Alerts(),
		DetectionReport: d.det.Report(),
	}
	if d.inspector != nil {
		info, err := d.inspector.SystemInfo(ctx)
		if err != nil {
			d.logger.Warn("system info unavailable for export", "error", err)
		} else {
			doc.SystemInfo = &info
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("dashboard: export: %w", err)
	}
	d.AddAlert(AlertInfo, "Security report exported successfully")
	return nil
}

func kindFor(ev activity.Event) AlertKind {
	switch ev.Type {
	case activity.TypeUnnaturalTyping, activity.TypeAINetwork:
		return AlertWarning
	}
	return AlertDanger
}

func countProcesses(events []activity.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Type == activity.TypeAIProcess {
			n++
		}
	}
	return n
}
