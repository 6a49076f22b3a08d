// Package signatures holds the keyword lists shared by every detector.
//
// The lists are versioned as a unit. Process-name filtering, memory scanning,
// and network checks all read from the same Set so they cannot drift apart.
package signatures

import "strings"

// Version identifies the revision of the built-in lists. Bump it whenever a
// list changes so exported reports can be traced back to the rules that
// produced them.
const Version = "2026.10.1"

// AIKeywords are name fragments of AI assistant products and vendors.
var AIKeywords = []string{
	"cluely", "claude", "chatgpt", "openai", "anthropic", "copilot",
	"ai-helper", "gpt", "llm", "completion", "prompt", "neural", "model",
}

// SystemDenyList are substrings of OS services, developer tools, and
// browsers. A process name containing any of them is never reported, even
// when it also contains an AI keyword.
var SystemDenyList = []string{
	// kernel and init
	"kernel", "launchd", "systemd", "init", "kthreadd", "migration",
	"ksoftirqd", "watchdog", "rcu_",
	// macOS services
	"systemstats", "cfprefsd", "distnoted", "UserEventAgent", "WindowServer",
	"loginwindow", "Dock", "Finder", "SystemUIServer", "coreaudiod",
	"audio", "bluetooth", "wifi", "network",
	"_cmiodalassistants", "cmio", "coremedia", "avconferenced",
	"com.apple", "apple.", "system.",
	// system paths
	"/usr/sbin", "/usr/bin", "/System/", "/Library/",
	"mdnsresponder", "mds", "spotlight", "backupd", "TimeMachine",
	"cron", "at", "ssh", "rsync",
	// browsers and dev tools
	"chrome", "firefox", "safari", "electron", "node", "python", "java",
	"ruby", "php", "npm", "git", "vscode", "xcode",
}

// MemorySignatures are substrings that betray an AI client in process memory.
var MemorySignatures = []string{
	"anthropic", "claude", "openai", "gpt-", "assistant", "completion",
	"prompt", "tokens", "model_name", "api_key", "ai_response", "generated_text",
}

// ScanExclusions are process names never memory scanned.
var ScanExclusions = []string{"kernel", "clueless"}

// AIEndpoints are remote hosts of hosted AI services.
var AIEndpoints = []string{
	"api.openai.com", "api.anthropic.com", "claude.ai", "chat.openai.com",
	"copilot.github.com",
}

// Set bundles one revision of every list.
type Set struct {
	Version          string
	AIKeywords       []string
	SystemDenyList   []string
	MemorySignatures []string
	ScanExclusions   []string
	AIEndpoints      []string
}

// Default returns a copy of the built-in lists. Callers may modify the
// returned slices freely.
func Default() *Set {
	return &Set{
		Version:          Version,
		AIKeywords:       clone(AIKeywords),
		SystemDenyList:   clone(SystemDenyList),
		MemorySignatures: clone(MemorySignatures),
		ScanExclusions:   clone(ScanExclusions),
		AIEndpoints:      clone(AIEndpoints),
	}
}

// Extra holds user-supplied additions to the built-in lists.
type Extra struct {
	AIKeywords       []string
	SystemDenyList   []string
	MemorySignatures []string
	ScanExclusions   []string
	AIEndpoints      []string
}

// Extend returns a new Set with the additions appended. Additions are
// lower-cased and de-duplicated; built-in entries are never removed.
func (s *Set) Extend(extra Extra) *Set {
	out := &Set{
		Version:          s.Version,
		AIKeywords:       merge(s.AIKeywords, extra.AIKeywords),
		SystemDenyList:   merge(s.SystemDenyList, extra.SystemDenyList),
		MemorySignatures: merge(s.MemorySignatures, extra.MemorySignatures),
		ScanExclusions:   merge(s.ScanExclusions, extra.ScanExclusions),
		AIEndpoints:      merge(s.AIEndpoints, extra.AIEndpoints),
	}
	if out.len() != s.len() {
		out.Version = s.Version + "+custom"
	}
	return out
}

func (s *Set) len() int {
	return len(s.AIKeywords) + len(s.SystemDenyList) + len(s.MemorySignatures) +
		len(s.ScanExclusions) + len(s.AIEndpoints)
}

// ContainsAny reports which of the needles occur in haystack, compared
// case-insensitively. The result preserves the order of needles.
func ContainsAny(haystack string, needles []string) []string {
	lower := strings.ToLower(haystack)
	var found []string
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			found = append(found, n)
		}
	}
	return found
}

// ContainsFold reports whether any needle occurs in haystack, compared
// case-insensitively.
func ContainsFold(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func merge(base, extra []string) []string {
	out := clone(base)
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, b := range base {
		seen[strings.ToLower(b)] = struct{}{}
	}
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
