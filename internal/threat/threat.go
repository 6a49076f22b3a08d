// Package threat reduces detection results to a threat level.
//
// Two signals are produced and they may disagree on the same data:
//
//   - Level is derived from the severities in the activity log. It is the
//     verdict carried by reports and the control interface.
//   - RiskScore is a 0-100 gauge computed from live counters (suspicious
//     clipboard entries, suspicious typing samples, total events). It drives
//     the dashboard and overlay.
package threat

import (
	"fmt"
	"strings"

	"clueless/internal/activity"
)

// Level is an ordered threat classification.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

// Rule thresholds.
const (
	criticalHigh = 3
	highMedium   = 3
)

// Risk score weights.
const (
	WeightClipboard = 20
	WeightTyping    = 15
	WeightEvent     = 10
	MaxRiskScore    = 100
)

// SeverityCounter is anything that can count events by severity.
type SeverityCounter interface {
	CountBySeverity(sev activity.Severity) int
}

// Assess computes the log-based level for c.
func Assess(c SeverityCounter) Level {
	return FromCounts(c.CountBySeverity(activity.SeverityHigh), c.CountBySeverity(activity.SeverityMedium))
}

// FromCounts applies the level rules to raw counts. The first matching rule
// wins.
func FromCounts(high, medium int) Level {
	switch {
	case high >= criticalHigh:
		return LevelCritical
	case high >= 1 || medium >= highMedium:
		return LevelHigh
	case medium >= 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

// RiskScore computes the live-metric score, capped at MaxRiskScore.
func RiskScore(suspiciousClipboard, suspiciousTyping, events int) int {
	score := WeightClipboard*suspiciousClipboard + WeightTyping*suspiciousTyping + WeightEvent*events
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	if score < 0 {
		return 0
	}
	return score
}

var levelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l Level) String() string {
	if l < LevelLow || l > LevelCritical {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == up {
			return Level(i), nil
		}
	}
	return LevelLow, fmt.Errorf("unknown threat level: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if l < LevelLow || l > LevelCritical {
		return nil, fmt.Errorf("invalid threat level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
