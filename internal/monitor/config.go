package monitor

import (
	"time"

	"clueless/internal/clipboard"
	"clueless/internal/inspect"
)

// Config sets poller cadence and scan limits.
type Config struct {
	ClipboardInterval time.Duration
	TypingInterval    time.Duration
	MemoryInterval    time.Duration
	HiddenInterval    time.Duration
	ProcessInterval   time.Duration

	// MemoryLines bounds the strings read from each process.
	MemoryLines int
	// CommandTimeout bounds each external command.
	CommandTimeout time.Duration

	MemoryScan  bool
	HiddenScan  bool
	ProcessScan bool
	// ResolveEndpoints enables DNS resolution of AI endpoints so numeric
	// netstat output can be matched.
	ResolveEndpoints bool
}

// DefaultConfig returns the standard cadences.
func DefaultConfig() Config {
	return Config{
		ClipboardInterval: clipboard.DefaultInterval,
		TypingInterval:    1000 * time.Millisecond,
		MemoryInterval:    5000 * time.Millisecond,
		HiddenInterval:    3000 * time.Millisecond,
		ProcessInterval:   2000 * time.Millisecond,
		MemoryLines:       inspect.DefaultMemoryLines,
		CommandTimeout:    inspect.DefaultTimeout,
		MemoryScan:        true,
		HiddenScan:        true,
		ProcessScan:       true,
		ResolveEndpoints:  true,
	}
}

// withDefaults fills zero durations and limits from DefaultConfig. Boolean
// switches are taken as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ClipboardInterval <= 0 {
		c.ClipboardInterval = def.ClipboardInterval
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = def.TypingInterval
	}
	if c.MemoryInterval <= 0 {
		c.MemoryInterval = def.MemoryInterval
	}
	if c.HiddenInterval <= 0 {
		c.HiddenInterval = def.HiddenInterval
	}
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = def.ProcessInterval
	}
	if c.MemoryLines <= 0 {
		c.MemoryLines = def.MemoryLines
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	return c
}
