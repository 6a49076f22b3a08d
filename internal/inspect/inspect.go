// Package inspect reads process, window, memory, and network state from the
// operating system.
//
// One Inspector is chosen for the running platform when New is called. It
// shells out to the usual system utilities (ps, tasklist, netstat, osascript,
// wmctrl) and, on Linux, reads process memory through /proc. The parsers for
// each utility's output are exported so they can be tested on fixtures.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"
)

// DefaultTimeout bounds every external command.
const DefaultTimeout = 5 * time.Second

// DefaultMemoryLines is the default number of strings read per process.
const DefaultMemoryLines = 1000

var (
	// ErrUnsupported is returned for capabilities this platform lacks.
	ErrUnsupported = errors.New("inspect: not supported on this platform")
)

// Process is one entry of the process table.
type Process struct {
	PID     int    `json:"pid" yaml:"pid"`
	User    string `json:"user,omitempty" yaml:"user,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	Window  string `json:"window,omitempty" yaml:"window,omitempty"`
}

// Connection is one socket from the connection table.
type Connection struct {
	Proto  string `json:"proto" yaml:"proto"`
	Local  string `json:"local" yaml:"local"`
	Remote string `json:"remote" yaml:"remote"`
	State  string `json:"state,omitempty" yaml:"state,omitempty"`
}

// SystemInfo describes the host.
type SystemInfo struct {
	Platform    string `json:"platform" yaml:"platform"`
	Arch        string `json:"arch" yaml:"arch"`
	Hostname    string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	CPUs        int    `json:"cpus" yaml:"cpus"`
	TotalMemory uint64 `json:"totalMemory" yaml:"totalMemory"`
	FreeMemory  uint64 `json:"freeMemory" yaml:"freeMemory"`
}

// Inspector is the platform's view of running software.
type Inspector interface {
	// Platform returns the GOOS this inspector serves.
	Platform() string

	// Processes lists running processes.
	Processes(ctx context.Context) ([]Process, error)

	// Connections lists network sockets.
	Connections(ctx context.Context) ([]Connection, error)

	// HiddenProcesses returns the names of running processes that own no
	// visible window. Callers decide which of them matter.
	HiddenProcesses(ctx context.Context) ([]string, error)

	// SupportsMemoryScan reports whether ReadMemory can succeed at all.
	SupportsMemoryScan() bool

	// ReadMemory returns up to maxLines printable strings from the memory of
	// pid, newline separated.
	ReadMemory(ctx context.Context, pid int, maxLines int) (string, error)

	// SystemInfo describes the host.
	SystemInfo(ctx context.Context) (SystemInfo, error)
}

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner. A non-zero exit status is an error.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Options configure New.
type Options struct {
	Runner Runner
	Logger *slog.Logger
}

// New returns the Inspector for the running platform.
func New(opts Options) Inspector {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{Timeout: DefaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return newPlatform(opts)
}

func baseSystemInfo() SystemInfo {
	return SystemInfo{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
	}
}
