//go:build windows

package inspect

import (
	"context"
	"runtime"
)

// windowsInspector reads the process table with tasklist. Memory scanning is
// not offered on Windows.
type windowsInspector struct {
	run Runner
}

func newPlatform(opts Options) Inspector {
	return &windowsInspector{run: opts.Runner}
}

func (w *windowsInspector) Platform() string { return runtime.GOOS }

func (w *windowsInspector) SupportsMemoryScan() bool { return false }

func (w *windowsInspector) Processes(ctx context.Context) ([]Process, error) {
	out, err := w.run.Run(ctx, "tasklist", "/fo", "csv")
	if err != nil {
		return nil, err
	}
	return ParseTasklist(string(out)), nil
}

func (w *windowsInspector) Connections(ctx context.Context) ([]Connection, error) {
	return netstat(ctx, w.run)
}

// HiddenProcesses returns processes whose verbose tasklist window title is
// missing or marked hidden.
func (w *windowsInspector) HiddenProcesses(ctx context.Context) ([]string, error) {
	out, err := w.run.Run(ctx, "tasklist", "/v", "/fo", "csv")
	if err != nil {
		return nil, err
	}
	var hidden []string
	for _, p := range ParseTasklist(string(out)) {
		if WindowHidden(p.Window) {
			hidden = append(hidden, p.Name)
		}
	}
	return hidden, nil
}

func (w *windowsInspector) ReadMemory(context.Context, int, int) (string, error) {
	return "", ErrUnsupported
}

func (w *windowsInspector) SystemInfo(context.Context) (SystemInfo, error) {
	return hostSystemInfo(), nil
}
