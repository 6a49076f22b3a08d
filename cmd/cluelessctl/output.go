package main

import (
	"fmt"
	"os"
	"strings"

	"clueless/internal/dashboard"
	"clueless/internal/threat"
)

// palette holds ANSI escapes; the zero value prints plain text.
type palette struct {
	Reset, Bold, Dim, Red, Green, Yellow, Cyan string
}

var c = palette{
	Reset:  "\033[0m",
	Bold:   "\033[1m",
	Dim:    "\033[2m",
	Red:    "\033[31m",
	Green:  "\033[32m",
	Yellow: "\033[33m",
	Cyan:   "\033[36m",
}

func printSection(title string) {
	fmt.Println()
	fmt.Printf("%s%s%s\n", c.Bold, title, c.Reset)
	fmt.Printf("%s%s%s\n", c.Dim, strings.Repeat("─", len(title)), c.Reset)
}

func printField(name string, value any) {
	fmt.Printf("  %s%-14s%s %v\n", c.Dim, name, c.Reset, value)
}

func printSuccess(msg string) {
	fmt.Printf("%s✓%s %s\n", c.Green, c.Reset, msg)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s✗ Error%s: %s\n", c.Red, c.Reset, msg)
}

func levelColor(l threat.Level) string {
	switch l {
	case threat.LevelCritical, threat.LevelHigh:
		return c.Red
	case threat.LevelMedium:
		return c.Yellow
	}
	return c.Green
}

func alertColor(k dashboard.AlertKind) string {
	switch k {
	case dashboard.AlertDanger:
		return c.Red
	case dashboard.AlertWarning:
		return c.Yellow
	}
	return c.Cyan
}
