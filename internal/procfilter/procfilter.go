// Package procfilter decides whether a process name looks like an AI
// assistant.
package procfilter

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"clueless/internal/signatures"
)

// DefaultCacheSize bounds the number of remembered verdicts.
const DefaultCacheSize = 4096

// Filter classifies process names against a signature set. The deny list
// always wins over the AI keyword list. Verdicts are cached by exact name
// because the same names recur on every scan.
//
// A Filter is safe for concurrent use.
type Filter struct {
	deny     []string
	keywords []string
	cache    *lru.Cache[string, bool]
}

// New creates a Filter for set. A cacheSize of zero or less disables caching.
func New(set *signatures.Set, cacheSize int) *Filter {
	if set == nil {
		set = signatures.Default()
	}
	f := &Filter{
		deny:     lowerAll(set.SystemDenyList),
		keywords: lowerAll(set.AIKeywords),
	}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		f.cache, _ = lru.New[string, bool](cacheSize)
	}
	return f
}

// IsLikelyAIAssistant reports whether name matches an AI keyword and no
// system deny-list entry.
func (f *Filter) IsLikelyAIAssistant(name string) bool {
	if f.cache != nil {
		if v, ok := f.cache.Get(name); ok {
			return v
		}
	}
	v := f.classify(name)
	if f.cache != nil {
		f.cache.Add(name, v)
	}
	return v
}

// IsSystem reports whether name matches the system deny list.
func (f *Filter) IsSystem(name string) bool {
	return containsAny(strings.ToLower(name), f.deny)
}

func (f *Filter) classify(name string) bool {
	lower := strings.ToLower(name)
	if containsAny(lower, f.deny) {
		return false
	}
	return containsAny(lower, f.keywords)
}

// Select returns the names for which IsLikelyAIAssistant is true, in input
// order.
func (f *Filter) Select(names []string) []string {
	var out []string
	for _, n := range names {
		if f.IsLikelyAIAssistant(n) {
			out = append(out, n)
		}
	}
	return out
}

// Purge drops every cached verdict.
func (f *Filter) Purge() {
	if f.cache != nil {
		f.cache.Purge()
	}
}

var defaultFilter = New(signatures.Default(), DefaultCacheSize)

// IsLikelyAIAssistant classifies name using the built-in signature lists.
func IsLikelyAIAssistant(name string) bool {
	return defaultFilter.IsLikelyAIAssistant(name)
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
