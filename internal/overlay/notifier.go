package overlay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clueless/internal/threat"
)

// DefaultNotifyPerMinute caps notifications when no rate is configured.
const DefaultNotifyPerMinute = 6

// Urgency levels of the freedesktop notification spec.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// poster delivers one notification and returns its id. replaces is the id of
// a previous notification to replace, or zero.
type poster interface {
	post(summary, body string, urgency byte, replaces uint32) (uint32, error)
	close() error
}

// Notifier posts a desktop notification whenever the threat level changes
// while it is visible. Notifications beyond the rate limit are dropped; the
// next change after the limit refills is posted.
type Notifier struct {
	p       poster
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	visible bool
	level   threat.Level
	posted  bool
	id      uint32
}

func newNotifier(p poster, perMinute int, logger *slog.Logger) *Notifier {
	if perMinute <= 0 {
		perMinute = DefaultNotifyPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		p:       p,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		logger:  logger.With("component", "overlay"),
	}
}

func (n *Notifier) Show() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = true
	return nil
}

// Hide stops notifications. The next Show posts the current level again.
func (n *Notifier) Hide() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = false
	n.posted = false
	return nil
}

func (n *Notifier) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

// Update posts a notification if s carries a new threat level.
func (n *Notifier) Update(s Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.visible || (n.posted && s.ThreatLevel == n.level) {
		return nil
	}
	if !n.limiter.Allow() {
		n.logger.Debug("notification rate limited", "level", s.ThreatLevel)
		return nil
	}

	id, err := n.p.post(summary(s), s.String(), urgency(s.ThreatLevel), n.id)
	if err != nil {
		return fmt.Errorf("overlay: post notification: %w", err)
	}
	n.id = id
	n.level = s.ThreatLevel
	n.posted = true
	return nil
}

func (n *Notifier) Close() error {
	return n.p.close()
}

func summary(s Status) string {
	if !s.IsMonitoring {
		return "Clueless: monitoring stopped"
	}
	if s.IsClean {
		return "Clueless: no AI assistance detected"
	}
	return "Clueless: threat level " + s.ThreatLevel.String()
}

func urgency(l threat.Level) byte {
	switch {
	case l >= threat.LevelHigh:
		return urgencyCritical
	case l == threat.LevelMedium:
		return urgencyNormal
	}
	return urgencyLow
}
