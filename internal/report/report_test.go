package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"clueless/internal/activity"
	"clueless/internal/threat"
	"clueless/internal/typing"
)

func sampleInput(now time.Time) Input {
	var clip []ClipboardEntry
	for i := 0; i < 8; i++ {
		clip = append(clip, ClipboardEntry{
			Content:    fmt.Sprintf("entry %d", i),
			Timestamp:  now.Add(time.Duration(i) * time.Second),
			Suspicious: i%2 == 0 || i == 7,
		})
	}
	return Input{
		Now:        now,
		Monitoring: true,
		Events: []activity.Event{
			activity.NewEvent(activity.TypeClipboardInjection, activity.SeverityHigh, now.Add(-20*time.Second),
				map[string]any{"content": "Furthermore..."}),
			activity.NewEvent(activity.TypeHiddenProcesses, activity.SeverityHigh, now.Add(-time.Second),
				map[string]any{"processes": []string{"cluely", "claude"}}),
			activity.NewEvent(activity.TypeUnnaturalTyping, activity.SeverityLow, now, nil),
		},
		Clipboard: clip,
		Typing: []typing.Snapshot{
			{Timestamp: now, AvgKeystrokeInterval: 100, BackspaceRatio: 0.1},
			{Timestamp: now, AvgKeystrokeInterval: 30, BackspaceRatio: 0.0},
		},
		SignatureVersion: "test",
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	r := Build(sampleInput(now))

	assert.Equal(t, now, r.Timestamp)
	assert.Len(t, r.SuspiciousActivity, 3)
	assert.Equal(t, 8, r.ClipboardAnalysis.TotalEntries)
	assert.Equal(t, 5, r.ClipboardAnalysis.SuspiciousEntries)

	require.Len(t, r.ClipboardAnalysis.RecentSuspicious, RecentSuspiciousLimit)
	assert.Equal(t, "entry 0", r.ClipboardAnalysis.RecentSuspicious[0].Content)
	assert.Equal(t, "entry 7", r.ClipboardAnalysis.RecentSuspicious[4].Content)

	assert.Equal(t, 2, r.TypingAnalysis.TotalPatterns)
	assert.Equal(t, 1, r.TypingAnalysis.SuspiciousPatterns)

	assert.Equal(t, threat.LevelHigh, r.OverallThreatLevel)
	// 5*20 + 1*15 + 3*10 caps at 100.
	assert.Equal(t, 100, r.RiskScore)
	assert.False(t, r.Empty())
}

func TestBuildRecentSuspiciousLastFive(t *testing.T) {
	now := time.Now()
	var clip []ClipboardEntry
	for i := 0; i < 12; i++ {
		clip = append(clip, ClipboardEntry{Content: fmt.Sprint(i), Timestamp: now, Suspicious: true})
	}
	r := Build(Input{Now: now, Clipboard: clip})
	got := make([]string, 0, 5)
	for _, e := range r.ClipboardAnalysis.RecentSuspicious {
		got = append(got, e.Content)
	}
	assert.Equal(t, []string{"7", "8", "9", "10", "11"}, got)
}

func TestBuildDoesNotAlias(t *testing.T) {
	in := sampleInput(time.Now())
	r := Build(in)
	in.Events[0].Type = activity.TypeAINetwork
	assert.Equal(t, activity.TypeClipboardInjection, r.SuspiciousActivity[0].Type)
}

func TestBuildEmpty(t *testing.T) {
	r := Build(Input{Now: time.Now()})
	assert.True(t, r.Empty())
	assert.Equal(t, threat.LevelLow, r.OverallThreatLevel)
	assert.Zero(t, r.RiskScore)
	assert.NotNil(t, r.SuspiciousActivity)
	assert.NotNil(t, r.ClipboardAnalysis.RecentSuspicious)
}

func TestRecent(t *testing.T) {
	now := time.Now()
	r := Build(sampleInput(now))
	recent := r.Recent(10 * time.Second)
	require.Len(t, recent, 2)
	assert.Equal(t, activity.TypeHiddenProcesses, recent[0].Type)
}

func TestJSONShape(t *testing.T) {
	r := Build(sampleInput(time.Now()))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatJSON))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	for _, key := range []string{"timestamp", "suspiciousActivity", "clipboardAnalysis", "typingAnalysis", "overallThreatLevel"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "HIGH", m["overallThreatLevel"])

	require.NoError(t, Validate(buf.Bytes()))
}

func TestValidateRejects(t *testing.T) {
	err := Validate([]byte(`{"timestamp":"2026-10-19T00:00:00Z","overallThreatLevel":"SEVERE"}`))
	assert.Error(t, err)

	assert.Error(t, Validate([]byte(`not json`)))
}

func TestValidateEmptyReport(t *testing.T) {
	data, err := json.Marshal(Build(Input{Now: time.Now()}))
	require.NoError(t, err)
	assert.NoError(t, Validate(data))
}

func TestYAML(t *testing.T) {
	r := Build(sampleInput(time.Now()))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatYAML))

	var m map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "HIGH", m["overallThreatLevel"])
	assert.Contains(t, buf.String(), "clipboardAnalysis:")
}

func TestPrint(t *testing.T) {
	r := Build(sampleInput(time.Now()))
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatText))

	out := buf.String()
	assert.Contains(t, out, "AI ASSISTANCE DETECTION REPORT")
	assert.Contains(t, out, "Threat Level:   HIGH")
	assert.Contains(t, out, "Hidden AI processes detected: cluely, claude")
	assert.Contains(t, out, "clipboard_ai_injection")

	buf.Reset()
	Print(&buf, Build(Input{Now: time.Now()}))
	assert.Contains(t, buf.String(), "None recorded.")
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatText, "JSON": FormatJSON, "yml": FormatYAML, "text": FormatText}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
	assert.Error(t, Write(&bytes.Buffer{}, Report{}, Format("xml")))
}

func TestDescribe(t *testing.T) {
	ev := activity.NewEvent(activity.TypeHiddenProcesses, activity.SeverityHigh, time.Now(),
		map[string]any{"processes": []any{"a", "b"}})
	assert.Equal(t, "Hidden AI processes detected: a, b", Describe(ev))

	ev = activity.NewEvent(activity.TypeMemorySignature, activity.SeverityHigh, time.Now(),
		map[string]any{"process": "cluely"})
	assert.True(t, strings.HasSuffix(Describe(ev), "cluely"))
}
