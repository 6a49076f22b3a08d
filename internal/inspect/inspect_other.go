//go:build !linux && !darwin && !windows

package inspect

import (
	"context"
	"runtime"
)

// otherInspector covers remaining Unix systems with ps and netstat only.
type otherInspector struct {
	psInspector
}

func newPlatform(opts Options) Inspector {
	return &otherInspector{psInspector{run: opts.Runner, logger: opts.Logger}}
}

func (o *otherInspector) Platform() string { return runtime.GOOS }

func (o *otherInspector) SupportsMemoryScan() bool { return false }

func (o *otherInspector) HiddenProcesses(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (o *otherInspector) ReadMemory(context.Context, int, int) (string, error) {
	return "", ErrUnsupported
}

func (o *otherInspector) SystemInfo(context.Context) (SystemInfo, error) {
	return hostSystemInfo(), nil
}
