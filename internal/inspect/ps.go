package inspect

import (
	"context"
	"log/slog"
	"os"
)

// psInspector implements the parts of Inspector shared by Unix systems:
// the process table from `ps aux` and sockets from `netstat -an`.
type psInspector struct {
	run    Runner
	logger *slog.Logger
}

func (p *psInspector) Processes(ctx context.Context) ([]Process, error) {
	out, err := p.run.Run(ctx, "ps", "aux")
	if err != nil {
		return nil, err
	}
	return ParsePS(string(out)), nil
}

func (p *psInspector) Connections(ctx context.Context) ([]Connection, error) {
	return netstat(ctx, p.run)
}

func netstat(ctx context.Context, run Runner) ([]Connection, error) {
	out, err := run.Run(ctx, "netstat", "-an")
	if err != nil {
		return nil, err
	}
	return ParseNetstat(string(out)), nil
}

func hostSystemInfo() SystemInfo {
	info := baseSystemInfo()
	info.Hostname, _ = os.Hostname()
	return info
}
