package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"clueless/internal/activity"
)

// Format is an output encoding for reports.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format: %q", s)
}

// Write encodes r to w in format f.
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		Print(w, r)
		return nil
	}
	return fmt.Errorf("unknown report format: %q", f)
}

// Print writes a human-readable report.
func Print(w io.Writer, r Report) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "                    AI ASSISTANCE DETECTION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Generated:      %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Monitoring:     %s\n", onOff(r.Monitoring))
	fmt.Fprintf(w, "Threat Level:   %s\n", r.OverallThreatLevel)
	fmt.Fprintf(w, "Risk Score:     %d/100  %s\n", r.RiskScore, bar(r.RiskScore, 100, 20))
	if r.SignatureVersion != "" {
		fmt.Fprintf(w, "Signatures:     %s\n", r.SignatureVersion)
	}
	fmt.Fprintln(w)

	section(w, "CLIPBOARD")
	c := r.ClipboardAnalysis
	fmt.Fprintf(w, "Entries:        %d\n", c.TotalEntries)
	fmt.Fprintf(w, "Suspicious:     %d\n", c.SuspiciousEntries)
	for _, e := range c.RecentSuspicious {
		fmt.Fprintf(w, "  [%s] %s\n", e.Timestamp.Format(time.TimeOnly), oneLine(e.Content))
	}
	fmt.Fprintln(w)

	section(w, "TYPING")
	fmt.Fprintf(w, "Samples:        %d\n", r.TypingAnalysis.TotalPatterns)
	fmt.Fprintf(w, "Suspicious:     %d\n", r.TypingAnalysis.SuspiciousPatterns)
	fmt.Fprintln(w)

	section(w, "SUSPICIOUS ACTIVITY")
	if len(r.SuspiciousActivity) == 0 {
		fmt.Fprintln(w, "None recorded.")
	} else {
		counts := make(map[activity.Type]int)
		for _, ev := range r.SuspiciousActivity {
			counts[ev.Type]++
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-26s %d\n", t, counts[activity.Type(t)])
		}
		fmt.Fprintln(w)
		for _, ev := range r.SuspiciousActivity {
			fmt.Fprintf(w, "  %s  %-6s  %-24s %s\n",
				ev.Timestamp.Format(time.TimeOnly),
				strings.ToUpper(string(ev.Severity)),
				ev.Type,
				Describe(ev))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

// Describe returns a one-line summary of an event's details.
func Describe(ev activity.Event) string {
	switch ev.Type {
	case activity.TypeClipboardInjection:
		return "AI-generated text detected in clipboard"
	case activity.TypeMemorySignature:
		return fmt.Sprintf("AI signatures detected in process: %v", ev.Details["process"])
	case activity.TypeHiddenProcesses:
		return fmt.Sprintf("Hidden AI processes detected: %s", joinAny(ev.Details["processes"]))
	case activity.TypeUnnaturalTyping:
		return "Unnatural typing pattern detected"
	case activity.TypeAIProcess:
		return fmt.Sprintf("Suspicious process detected: %v", ev.Details["process"])
	case activity.TypeAINetwork:
		return fmt.Sprintf("Suspicious network connection: %v", ev.Details["remote"])
	}
	return string(ev.Type)
}

func joinAny(v any) string {
	switch list := v.(type) {
	case []string:
		return strings.Join(list, ", ")
	case []any:
		parts := make([]string, len(list))
		for i, x := range list {
			parts[i] = fmt.Sprint(x)
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", 72))
}

func bar(v, max, width int) string {
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	filled := v * width / max
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func onOff(b bool) string {
	if b {
		return "active"
	}
	return "idle"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
