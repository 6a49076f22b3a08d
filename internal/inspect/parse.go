package inspect

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// psNameField is the COMMAND column of `ps aux`.
const psNameField = 10

// ParsePS parses `ps aux` output. The header line is skipped, as are rows
// too short to carry a command or with a non-numeric PID.
func ParsePS(out string) []Process {
	lines := strings.Split(out, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	procs := make([]Process, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) <= psNameField {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		procs = append(procs, Process{
			PID:     pid,
			User:    fields[0],
			Name:    fields[psNameField],
			Command: strings.Join(fields[psNameField:], " "),
		})
	}
	return procs
}

// Field positions in `tasklist /v /fo csv`.
const (
	tlName   = 0
	tlPID    = 1
	tlUser   = 6
	tlWindow = 8
)

// ParseTasklist parses `tasklist /fo csv` output, with or without /v. The
// first record is the header and is skipped.
func ParseTasklist(out string) []Process {
	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var procs []Process
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			continue
		}
		if len(rec) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rec[tlPID]))
		if err != nil {
			continue
		}
		p := Process{PID: pid, Name: rec[tlName]}
		if len(rec) > tlWindow {
			p.User = rec[tlUser]
			p.Window = rec[tlWindow]
		}
		procs = append(procs, p)
	}
	return procs
}

// WindowHidden reports whether a tasklist window title marks a process as
// having no visible window.
func WindowHidden(title string) bool {
	return title == "N/A" || strings.Contains(title, "Hidden")
}

// ParseNetstat parses `netstat -an` output from Linux, macOS, and Windows.
// Only tcp and udp rows are returned.
//
//	Linux/macOS: proto recv-q send-q local remote [state]
//	Windows:     proto local remote [state]
func ParseNetstat(out string) []Connection {
	var conns []Connection
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		proto := strings.ToLower(fields[0])
		if !strings.HasPrefix(proto, "tcp") && !strings.HasPrefix(proto, "udp") {
			continue
		}

		var c Connection
		c.Proto = proto
		if len(fields) >= 5 && isNumber(fields[1]) && isNumber(fields[2]) {
			c.Local, c.Remote = fields[3], fields[4]
			if len(fields) >= 6 {
				c.State = fields[5]
			}
		} else {
			c.Local, c.Remote = fields[1], fields[2]
			if len(fields) >= 4 {
				c.State = fields[3]
			}
		}
		conns = append(conns, c)
	}
	return conns
}

// RemoteHost strips the port from a netstat address. Both host:port and the
// BSD host.port forms are handled; IPv6 brackets are removed.
func RemoteHost(addr string) string {
	if strings.HasPrefix(addr, "[") {
		if i := strings.Index(addr, "]"); i > 0 {
			return addr[1:i]
		}
	}
	if strings.Count(addr, ":") == 1 {
		return addr[:strings.Index(addr, ":")]
	}
	if strings.Count(addr, ":") > 1 {
		last := strings.LastIndex(addr, ":")
		if dot := strings.LastIndex(addr, "."); dot > last {
			// BSD IPv6: fe80::1.631
			return addr[:dot]
		}
		// Linux IPv6: ::ffff:10.0.0.1:443
		return addr[:last]
	}
	// BSD style: 17.57.146.5.5223
	if i := strings.LastIndex(addr, "."); i > 0 && strings.Count(addr, ".") == 4 {
		return addr[:i]
	}
	return addr
}

// ParseVisibleApps parses the comma separated process list printed by
// System Events.
func ParseVisibleApps(out string) []string {
	var names []string
	for _, n := range strings.Split(out, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// ParseWmctrl returns the set of PIDs owning a window in `wmctrl -lp`
// output.
func ParseWmctrl(out string) map[int]bool {
	pids := make(map[int]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if pid, err := strconv.Atoi(fields[2]); err == nil && pid > 0 {
			pids[pid] = true
		}
	}
	return pids
}

// hiddenByName returns the process names absent from visible. A process
// matches a visible entry by its full name or by the base name of its path.
func hiddenByName(procs []Process, visible []string) []string {
	vis := make(map[string]bool, len(visible))
	for _, v := range visible {
		vis[v] = true
	}
	seen := make(map[string]bool)
	var hidden []string
	for _, p := range procs {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		if vis[p.Name] || vis[filepath.Base(p.Name)] {
			continue
		}
		hidden = append(hidden, p.Name)
	}
	return hidden
}

// hiddenByPID returns the names of processes whose PID owns no window.
func hiddenByPID(procs []Process, windowed map[int]bool) []string {
	seen := make(map[string]bool)
	var hidden []string
	for _, p := range procs {
		if windowed[p.PID] || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		hidden = append(hidden, p.Name)
	}
	return hidden
}

// MemRegion is one mapping from /proc/<pid>/maps.
type MemRegion struct {
	Start, End uint64
	Perms      string
	Path       string
}

// Readable reports whether the mapping can be read.
func (r MemRegion) Readable() bool {
	return strings.HasPrefix(r.Perms, "r")
}

// ParseMaps parses the contents of /proc/<pid>/maps.
func ParseMaps(data string) []MemRegion {
	var regions []MemRegion
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, err1 := strconv.ParseUint(lo, 16, 64)
		end, err2 := strconv.ParseUint(hi, 16, 64)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		r := MemRegion{Start: start, End: end, Perms: fields[1]}
		if len(fields) >= 6 {
			r.Path = strings.Join(fields[5:], " ")
		}
		regions = append(regions, r)
	}
	return regions
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
