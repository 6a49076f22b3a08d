//go:build darwin

package inspect

import (
	"context"
	"runtime"

	"golang.org/x/sys/unix"
)

// visibleAppsScript lists the processes that System Events considers visible.
const visibleAppsScript = `tell application "System Events" to get name of every process whose visible is true`

type darwinInspector struct {
	psInspector
}

func newPlatform(opts Options) Inspector {
	return &darwinInspector{psInspector{run: opts.Runner, logger: opts.Logger}}
}

func (d *darwinInspector) Platform() string { return runtime.GOOS }

// SupportsMemoryScan is false: macOS has no /proc and task_for_pid needs
// entitlements a user tool does not have.
func (d *darwinInspector) SupportsMemoryScan() bool { return false }

func (d *darwinInspector) ReadMemory(context.Context, int, int) (string, error) {
	return "", ErrUnsupported
}

// HiddenProcesses diffs the process table against the visible processes
// reported by System Events.
func (d *darwinInspector) HiddenProcesses(ctx context.Context) ([]string, error) {
	procs, err := d.Processes(ctx)
	if err != nil {
		return nil, err
	}
	out, err := d.run.Run(ctx, "osascript", "-e", visibleAppsScript)
	if err != nil {
		return nil, err
	}
	return hiddenByName(procs, ParseVisibleApps(string(out))), nil
}

func (d *darwinInspector) SystemInfo(ctx context.Context) (SystemInfo, error) {
	info := hostSystemInfo()
	if total, err := unix.SysctlUint64("hw.memsize"); err == nil {
		info.TotalMemory = total
	}
	return info, nil
}
