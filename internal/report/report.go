// Package report assembles and renders detection reports.
package report

import (
	"time"

	"clueless/internal/activity"
	"clueless/internal/threat"
	"clueless/internal/typing"
)

// RecentSuspiciousLimit is the number of suspicious clipboard entries a
// report repeats in full.
const RecentSuspiciousLimit = 5

// ClipboardEntry is one observed clipboard value. Content is truncated for
// storage.
type ClipboardEntry struct {
	Content    string    `json:"content" yaml:"content"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Suspicious bool      `json:"suspicious" yaml:"suspicious"`
}

// ClipboardAnalysis summarizes clipboard history.
type ClipboardAnalysis struct {
	TotalEntries      int              `json:"totalEntries" yaml:"totalEntries"`
	SuspiciousEntries int              `json:"suspiciousEntries" yaml:"suspiciousEntries"`
	RecentSuspicious  []ClipboardEntry `json:"recentSuspicious" yaml:"recentSuspicious"`
}

// TypingAnalysis summarizes typing samples.
type TypingAnalysis struct {
	TotalPatterns      int `json:"totalPatterns" yaml:"totalPatterns"`
	SuspiciousPatterns int `json:"suspiciousPatterns" yaml:"suspiciousPatterns"`
}

// Report is the detection report handed to the control interface.
type Report struct {
	Timestamp          time.Time         `json:"timestamp" yaml:"timestamp"`
	Monitoring         bool              `json:"monitoring" yaml:"monitoring"`
	SuspiciousActivity []activity.Event  `json:"suspiciousActivity" yaml:"suspiciousActivity"`
	ClipboardAnalysis  ClipboardAnalysis `json:"clipboardAnalysis" yaml:"clipboardAnalysis"`
	TypingAnalysis     TypingAnalysis    `json:"typingAnalysis" yaml:"typingAnalysis"`
	OverallThreatLevel threat.Level      `json:"overallThreatLevel" yaml:"overallThreatLevel"`
	RiskScore          int               `json:"riskScore" yaml:"riskScore"`
	SignatureVersion   string            `json:"signatureVersion" yaml:"signatureVersion"`
}

// Input is the detector state a report is built from.
type Input struct {
	Now              time.Time
	Monitoring       bool
	Events           []activity.Event
	Clipboard        []ClipboardEntry
	Typing           []typing.Snapshot
	SignatureVersion string
}

// Build computes a report from in. It does not retain any of in's slices.
func Build(in Input) Report {
	r := Report{
		Timestamp:          in.Now,
		Monitoring:         in.Monitoring,
		SuspiciousActivity: make([]activity.Event, len(in.Events)),
		SignatureVersion:   in.SignatureVersion,
	}
	copy(r.SuspiciousActivity, in.Events)

	var suspicious []ClipboardEntry
	for _, e := range in.Clipboard {
		if e.Suspicious {
			suspicious = append(suspicious, e)
		}
	}
	r.ClipboardAnalysis = ClipboardAnalysis{
		TotalEntries:      len(in.Clipboard),
		SuspiciousEntries: len(suspicious),
		RecentSuspicious:  lastN(suspicious, RecentSuspiciousLimit),
	}

	var suspiciousTyping int
	for _, s := range in.Typing {
		if s.Suspicious() {
			suspiciousTyping++
		}
	}
	r.TypingAnalysis = TypingAnalysis{
		TotalPatterns:      len(in.Typing),
		SuspiciousPatterns: suspiciousTyping,
	}

	var high, medium int
	for _, ev := range in.Events {
		switch ev.Severity {
		case activity.SeverityHigh:
			high++
		case activity.SeverityMedium:
			medium++
		}
	}
	r.OverallThreatLevel = threat.FromCounts(high, medium)
	r.RiskScore = threat.RiskScore(r.ClipboardAnalysis.SuspiciousEntries, suspiciousTyping, len(in.Events))
	return r
}

// Empty reports whether the report carries no findings at all.
func (r Report) Empty() bool {
	return len(r.SuspiciousActivity) == 0 &&
		r.ClipboardAnalysis.TotalEntries == 0 &&
		r.TypingAnalysis.TotalPatterns == 0
}

// Recent returns the events of r younger than window relative to the report
// time.
func (r Report) Recent(window time.Duration) []activity.Event {
	var out []activity.Event
	for _, ev := range r.SuspiciousActivity {
		if r.Timestamp.Sub(ev.Timestamp) < window {
			out = append(out, ev)
		}
	}
	return out
}

func lastN(entries []ClipboardEntry, n int) []ClipboardEntry {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]ClipboardEntry, len(entries))
	copy(out, entries)
	return out
}
