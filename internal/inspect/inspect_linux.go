//go:build linux

package inspect

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

type linuxInspector struct {
	psInspector
	noWmctrl sync.Once
}

func newPlatform(opts Options) Inspector {
	return &linuxInspector{psInspector: psInspector{run: opts.Runner, logger: opts.Logger}}
}

func (l *linuxInspector) Platform() string { return runtime.GOOS }

func (l *linuxInspector) SupportsMemoryScan() bool { return true }

// HiddenProcesses uses wmctrl to find the PIDs that own a window. Without
// wmctrl there is no cheap window list, and ErrUnsupported is returned.
func (l *linuxInspector) HiddenProcesses(ctx context.Context) ([]string, error) {
	if _, err := exec.LookPath("wmctrl"); err != nil {
		l.noWmctrl.Do(func() {
			l.logger.Info("wmctrl not found, hidden process scan disabled")
		})
		return nil, ErrUnsupported
	}
	procs, err := l.Processes(ctx)
	if err != nil {
		return nil, err
	}
	out, err := l.run.Run(ctx, "wmctrl", "-lp")
	if err != nil {
		return nil, err
	}
	return hiddenByPID(procs, ParseWmctrl(string(out))), nil
}

func (l *linuxInspector) ReadMemory(ctx context.Context, pid int, maxLines int) (string, error) {
	return readProcMem(ctx, pid, maxLines)
}

func (l *linuxInspector) SystemInfo(ctx context.Context) (SystemInfo, error) {
	info := hostSystemInfo()
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return info, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	info.TotalMemory = uint64(si.Totalram) * unit
	info.FreeMemory = uint64(si.Freeram) * unit
	return info, nil
}
