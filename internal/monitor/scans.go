package monitor

import (
	"context"
	"errors"
	"strconv"

	"clueless/internal/activity"
	"clueless/internal/classifier"
	"clueless/internal/clipboard"
	"clueless/internal/inspect"
	"clueless/internal/report"
	"clueless/internal/signatures"
	"clueless/internal/typing"
)

// handleClipboard records a clipboard change and raises an event when the
// text classifies as AI generated.
func (d *Detector) handleClipboard(gen uint64, c clipboard.Change) {
	res := classifier.Score(c.Content)
	entry := report.ClipboardEntry{
		Content:    clipboard.Truncate(c.Content, ClipboardPreviewLength),
		Timestamp:  c.Timestamp,
		Suspicious: res.Suspicious(),
	}
	if !d.apply(gen, func() { d.clipboard = append(d.clipboard, entry) }) {
		return
	}
	if !entry.Suspicious {
		return
	}

	d.logger.Debug("clipboard text classified as AI generated", "score", res.Score, "signatures", res.Matched)
	d.record(gen, activity.NewEvent(activity.TypeClipboardInjection, activity.SeverityHigh, c.Timestamp, map[string]any{
		"content":    clipboard.Preview(c.Content, ClipboardPreviewLength),
		"score":      res.Score,
		"signatures": res.Matched,
	}))
}

// sampleTyping takes one typing sample.
func (d *Detector) sampleTyping(ctx context.Context, gen uint64) {
	snap, err := d.typing.Sample(ctx)
	if err != nil {
		if !errors.Is(err, typing.ErrNoData) && ctx.Err() == nil {
			d.obs.ScanFailed(KindTyping)
			d.logger.Warn("typing sample failed", "error", err)
		}
		return
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = d.now()
	}
	if !d.apply(gen, func() { d.patterns = append(d.patterns, snap) }) {
		return
	}
	if !snap.Unnatural() {
		return
	}
	d.record(gen, activity.NewEvent(activity.TypeUnnaturalTyping, activity.SeverityLow, snap.Timestamp, map[string]any{
		"avgKeystrokeInterval": snap.AvgKeystrokeInterval,
		"backspaceRatio":       snap.BackspaceRatio,
		"pauseFrequency":       snap.PauseFrequency,
		"burstTyping":          snap.BurstTyping,
	}))
}

// scanMemory reads each process's memory and looks for AI signatures.
// Per-process failures are ignored.
func (d *Detector) scanMemory(ctx context.Context, gen uint64) {
	// Commands already started run to completion after Stop.
	cctx := context.WithoutCancel(ctx)

	procs, err := d.inspector.Processes(cctx)
	if err != nil {
		d.scanFailed(KindMemory, err)
		return
	}

	var unreadable int
	for _, p := range procs {
		if signatures.ContainsFold(p.Name, d.sigs.ScanExclusions) {
			continue
		}
		if !d.active(gen) {
			return
		}
		mem, err := d.inspector.ReadMemory(cctx, p.PID, d.cfg.MemoryLines)
		if err != nil {
			unreadable++
			continue
		}
		found := signatures.ContainsAny(mem, d.sigs.MemorySignatures)
		if len(found) == 0 {
			continue
		}
		d.record(gen, activity.NewEvent(activity.TypeMemorySignature, activity.SeverityHigh, d.now(), map[string]any{
			"process":    p.Name,
			"pid":        strconv.Itoa(p.PID),
			"signatures": found,
		}))
	}
	d.logger.Debug("memory scan complete", "processes", len(procs), "unreadable", unreadable)
}

// scanHidden looks for AI processes that own no visible window.
func (d *Detector) scanHidden(ctx context.Context, gen uint64) {
	names, err := d.inspector.HiddenProcesses(context.WithoutCancel(ctx))
	if err != nil {
		if !errUnsupported(err) {
			d.scanFailed(KindHidden, err)
		}
		return
	}
	hidden := d.filter.Select(names)
	if len(hidden) == 0 {
		return
	}
	d.record(gen, activity.NewEvent(activity.TypeHiddenProcesses, activity.SeverityHigh, d.now(), map[string]any{
		"processes": hidden,
	}))
}

// scanProcesses reports AI processes and connections to AI services, once
// per name or remote address until the history is cleared.
func (d *Detector) scanProcesses(ctx context.Context, gen uint64) {
	cctx := context.WithoutCancel(ctx)

	if procs, err := d.inspector.Processes(cctx); err != nil {
		d.scanFailed(KindProcess, err)
	} else {
		d.reportProcesses(gen, procs)
	}

	if !d.active(gen) {
		return
	}
	d.endpoints.refresh(ctx)
	if conns, err := d.inspector.Connections(cctx); err != nil {
		d.scanFailed(KindProcess, err)
	} else {
		d.reportConnections(gen, conns)
	}
}

func (d *Detector) reportProcesses(gen uint64, procs []inspect.Process) {
	var events []activity.Event
	d.apply(gen, func() {
		for _, p := range procs {
			if d.seenProc[p.Name] || !d.filter.IsLikelyAIAssistant(p.Name) {
				continue
			}
			d.seenProc[p.Name] = true
			events = append(events, activity.NewEvent(activity.TypeAIProcess, activity.SeverityMedium, d.now(), map[string]any{
				"process": p.Name,
				"pid":     strconv.Itoa(p.PID),
			}))
		}
	})
	if len(events) > 0 {
		d.record(gen, events...)
	}
}

func (d *Detector) reportConnections(gen uint64, conns []inspect.Connection) {
	var events []activity.Event
	d.apply(gen, func() {
		for _, c := range conns {
			endpoint, ok := d.endpoints.match(c.Remote)
			if !ok || d.seenConn[c.Remote] {
				continue
			}
			d.seenConn[c.Remote] = true
			events = append(events, activity.NewEvent(activity.TypeAINetwork, activity.SeverityMedium, d.now(), map[string]any{
				"remote":   c.Remote,
				"endpoint": endpoint,
				"state":    c.State,
			}))
		}
	})
	if len(events) > 0 {
		d.record(gen, events...)
	}
}

func (d *Detector) scanFailed(kind Kind, err error) {
	d.obs.ScanFailed(kind)
	d.logger.Warn("scan failed, no data this tick", "kind", kind, "error", err)
}
