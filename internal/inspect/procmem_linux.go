//go:build linux

package inspect

import (
	"context"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// memChunk is the pread size.
	memChunk = 64 << 10
	// memBudget caps the bytes read from one process per scan.
	memBudget = 4 << 20
)

// skipRegions are kernel-provided mappings that fault or carry nothing
// useful when read.
var skipRegions = map[string]bool{
	"[vvar]":        true,
	"[vvar_vclock]": true,
	"[vsyscall]":    true,
}

// readProcMem extracts printable strings from the readable mappings of pid.
// Access usually requires ptrace permission over the target.
func readProcMem(ctx context.Context, pid int, maxLines int) (string, error) {
	maps, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return "", err
	}

	fd, err := unix.Open(fmt.Sprintf("/proc/%d/mem", pid), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", fmt.Errorf("open mem: %w", err)
	}
	defer unix.Close(fd)

	ex := newStringExtractor(maxLines)
	buf := make([]byte, memChunk)
	budget := memBudget
	var (
		readAny bool
		lastErr error
	)

	for _, region := range ParseMaps(string(maps)) {
		if ex.Full() || budget <= 0 {
			break
		}
		if !region.Readable() || skipRegions[region.Path] || region.End > math.MaxInt64 {
			continue
		}
		for off := region.Start; off < region.End && budget > 0 && !ex.Full(); {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			n := uint64(len(buf))
			if rem := region.End - off; rem < n {
				n = rem
			}
			if uint64(budget) < n {
				n = uint64(budget)
			}
			got, err := unix.Pread(fd, buf[:n], int64(off))
			if err != nil {
				lastErr = err
				break
			}
			if got <= 0 {
				break
			}
			readAny = true
			ex.Write(buf[:got])
			off += uint64(got)
			budget -= got
		}
		ex.Break()
	}

	if !readAny && lastErr != nil {
		return "", fmt.Errorf("read mem: %w", lastErr)
	}
	return ex.String(), nil
}
