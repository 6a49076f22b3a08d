// Package activity records suspicious events observed during a monitoring
// session.
//
// The Log is append-only. Events are never mutated or evicted; the only way to
// shrink it is Clear, which empties it wholesale.
package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies what kind of detection produced an event.
type Type string

const (
	TypeClipboardInjection Type = "clipboard_ai_injection"
	TypeUnnaturalTyping    Type = "unnatural_typing_pattern"
	TypeMemorySignature    Type = "memory_ai_signature"
	TypeHiddenProcesses    Type = "hidden_ai_processes"
	TypeAIProcess          Type = "ai_process_running"
	TypeAINetwork          Type = "ai_network_connection"
)

// Types lists every known event type.
var Types = []Type{
	TypeClipboardInjection,
	TypeUnnaturalTyping,
	TypeMemorySignature,
	TypeHiddenProcesses,
	TypeAIProcess,
	TypeAINetwork,
}

// Severity is the weight of an event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// Event is a single detection record.
type Event struct {
	ID        string         `json:"id" yaml:"id"`
	Type      Type           `json:"type" yaml:"type"`
	Severity  Severity       `json:"severity" yaml:"severity"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// NewEvent builds an event with a fresh ID.
func NewEvent(typ Type, sev Severity, ts time.Time, details map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Timestamp: ts,
		Details:   details,
	}
}

// Log is an append-only, insertion-ordered store of events.
// It is safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []Event
	counts map[Severity]int
	now    func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		counts: make(map[Severity]int, len(Severities)),
		now:    time.Now,
	}
}

// SetClock replaces the time source used by Recent. Intended for tests.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Append adds ev to the end of the log.
func (l *Log) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	l.counts[ev.Severity]++
}

// Recent returns the events whose age is strictly less than window.
func (l *Log) Recent(window time.Duration) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	var out []Event
	for _, ev := range l.events {
		if now.Sub(ev.Timestamp) < window {
			out = append(out, ev)
		}
	}
	return out
}

// CountBySeverity returns the number of events with severity sev.
func (l *Log) CountBySeverity(sev Severity) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[sev]
}

// Events returns a copy of every event in insertion order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.counts = make(map[Severity]int, len(Severities))
}
