// Package monitor runs the detection loop.
//
// A Detector has two states, idle and monitoring. While monitoring it runs one
// poller per detection kind:
//
//   - clipboard: change driven, classifies every new clipboard value
//   - typing: samples keystroke timing every second
//   - memory: scans process memory for AI signatures every five seconds
//   - hidden: looks for AI processes without a visible window every three seconds
//   - process: looks for AI processes and AI service connections every two seconds
//
// A poller never overlaps itself: when a tick fires while the previous tick of
// the same kind is still running, the new tick is skipped. Results are applied
// only if the session that produced them is still the current one, so nothing
// is recorded after Stop returns even if a slow external command finishes
// later.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clueless/internal/activity"
	"clueless/internal/clipboard"
	"clueless/internal/inspect"
	"clueless/internal/procfilter"
	"clueless/internal/report"
	"clueless/internal/signatures"
	"clueless/internal/threat"
	"clueless/internal/typing"
)

// State is the detector's run state.
type State int32

const (
	StateIdle State = iota
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMonitoring:
		return "MONITORING"
	}
	return "UNKNOWN"
}

// Kind names a poller.
type Kind string

const (
	KindClipboard Kind = "clipboard"
	KindTyping    Kind = "typing"
	KindMemory    Kind = "memory"
	KindHidden    Kind = "hidden"
	KindProcess   Kind = "process"
)

// Kinds lists every poller kind.
var Kinds = []Kind{KindClipboard, KindTyping, KindMemory, KindHidden, KindProcess}

// ClipboardPreviewLength is how much clipboard text is kept per entry.
const ClipboardPreviewLength = 100

// Observer receives loop telemetry. Implementations must not block.
type Observer interface {
	StateChanged(s State)
	TickRun(k Kind)
	TickSkipped(k Kind)
	ScanFailed(k Kind)
	EventRecorded(ev activity.Event)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State) {}
func (nopObserver) TickRun(Kind) {}
func (nopObserver) TickSkipped(Kind) {}
func (nopObserver) ScanFailed(Kind) {}
func (nopObserver) EventRecorded(activity.Event) {}

// Options wire a Detector to its collaborators. Zero values select the
// platform defaults.
type Options struct {
	Config     Config
	Inspector  inspect.Inspector
	Clipboard  clipboard.Provider
	Typing     typing.Source
	Signatures *signatures.Set
	Logger     *slog.Logger
	Observer   Observer
	// Lookup resolves AI endpoint host names. Nil uses the system resolver.
	Lookup LookupFunc
}

// Detector is the monitoring loop. It is safe for concurrent use.
type Detector struct {
	cfg       Config
	inspector inspect.Inspector
	clip      clipboard.Provider
	typing    typing.Source
	sigs      *signatures.Set
	filter    *procfilter.Filter
	endpoints *endpointMatcher
	logger    *slog.Logger
	obs       Observer
	now       func() time.Time

	inflight map[Kind]*atomic.Bool
	ticks    sync.WaitGroup // running tick bodies

	mu        sync.Mutex
	state     State
	gen       uint64
	sess      *session
	log       *activity.Log
	clipboard []report.ClipboardEntry
	patterns  []typing.Snapshot
	seenProc  map[string]bool
	seenConn  map[string]bool

	subMu sync.Mutex
	subs  map[chan activity.Event]struct{}
}

// session holds the goroutines of one Start/Stop cycle.
type session struct {
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle Detector.
func New(opts Options) *Detector {
	cfg := opts.Config.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Signatures == nil {
		opts.Signatures = signatures.Default()
	}
	if opts.Inspector == nil {
		opts.Inspector = inspect.New(inspect.Options{
			Runner: inspect.ExecRunner{Timeout: cfg.CommandTimeout},
			Logger: opts.Logger,
		})
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.New()
	}
	if opts.Typing == nil {
		opts.Typing = typing.NewSimulated(0)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	d := &Detector{
		cfg:       cfg,
		inspector: opts.Inspector,
		clip:      opts.Clipboard,
		typing:    opts.Typing,
		sigs:      opts.Signatures,
		filter:    procfilter.New(opts.Signatures, procfilter.DefaultCacheSize),
		endpoints: newEndpointMatcher(opts.Signatures.AIEndpoints, opts.Lookup, cfg.ResolveEndpoints),
		logger:    opts.Logger.With("component", "monitor"),
		obs:       opts.Observer,
		now:       time.Now,
		inflight:  make(map[Kind]*atomic.Bool, len(Kinds)),
		log:       activity.NewLog(),
		seenProc:  make(map[string]bool),
		seenConn:  make(map[string]bool),
		subs:      make(map[chan activity.Event]struct{}),
	}
	for _, k := range Kinds {
		d.inflight[k] = new(atomic.Bool)
	}
	return d
}

// Start begins monitoring. Calling Start while already monitoring does
// nothing and returns nil. The session lives until Stop or until ctx is
// canceled.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateMonitoring {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.gen++
	gen := d.gen
	sctx, cancel := context.WithCancel(ctx)
	s := &session{gen: gen, cancel: cancel}
	d.sess = s
	d.state = StateMonitoring

	if clipboard.Available(d.clip) {
		w := clipboard.NewWatcher(d.clip, d.cfg.ClipboardInterval, d.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.Run(sctx, func(c clipboard.Change) {
				d.obs.TickRun(KindClipboard)
				d.handleClipboard(gen, c)
			})
		}()
	} else {
		d.logger.Warn("clipboard unavailable, clipboard monitoring disabled")
	}

	d.every(sctx, s, KindTyping, d.cfg.TypingInterval, d.sampleTyping)
	if d.cfg.MemoryScan && d.inspector.SupportsMemoryScan() {
		d.every(sctx, s, KindMemory, d.cfg.MemoryInterval, d.scanMemory)
	}
	if d.cfg.HiddenScan {
		d.every(sctx, s, KindHidden, d.cfg.HiddenInterval, d.scanHidden)
	}
	if d.cfg.ProcessScan {
		d.every(sctx, s, KindProcess, d.cfg.ProcessInterval, d.scanProcesses)
	}

	// End the session if the parent context goes away.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-sctx.Done()
		if ctx.Err() != nil {
			d.endSession(gen)
		}
	}()

	d.logger.Info("monitoring started", "session", gen, "platform", d.inspector.Platform())
	d.obs.StateChanged(StateMonitoring)
	return nil
}

// Stop ends monitoring and waits for the pollers to exit. In-flight ticks
// are not interrupted; their results are dropped. Stopping an idle detector
// does nothing.
func (d *Detector) Stop() error {
	d.mu.Lock()
	if d.state != StateMonitoring {
		d.mu.Unlock()
		return nil
	}
	s := d.sess
	d.state = StateIdle
	d.gen++
	d.sess = nil
	d.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	d.logger.Info("monitoring stopped", "session", s.gen)
	d.obs.StateChanged(StateIdle)
	return nil
}

// endSession stops session gen if it is still current.
func (d *Detector) endSession(gen uint64) {
	d.mu.Lock()
	if d.state != StateMonitoring || d.gen != gen {
		d.mu.Unlock()
		return
	}
	s := d.sess
	d.state = StateIdle
	d.gen++
	d.sess = nil
	d.mu.Unlock()

	s.cancel()
	d.logger.Info("monitoring ended with parent context", "session", gen)
	d.obs.StateChanged(StateIdle)
}

// State returns the current run state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Monitoring reports whether the detector is running.
func (d *Detector) Monitoring() bool {
	return d.State() == StateMonitoring
}

// every runs fn on a ticker until ctx is done. Each tick body runs on its own
// goroutine so a slow tick shows up as skipped ticks instead of a drifting
// ticker.
func (d *Detector) every(ctx context.Context, s *session, kind Kind, interval time.Duration, fn func(context.Context, uint64)) {
	busy := d.inflight[kind]
	gen := s.gen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !busy.CompareAndSwap(false, true) {
					d.obs.TickSkipped(kind)
					d.logger.Debug("tick skipped, previous still running", "kind", kind)
					continue
				}
				d.obs.TickRun(kind)
				d.ticks.Add(1)
				go func() {
					defer d.ticks.Done()
					defer busy.Store(false)
					fn(ctx, gen)
				}()
			}
		}
	}()
}

// active reports whether session gen is still current.
func (d *Detector) active(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateMonitoring && d.gen == gen
}

// apply runs fn under the state lock if session gen is still current.
func (d *Detector) apply(gen uint64, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateMonitoring || d.gen != gen {
		return false
	}
	fn()
	return true
}

// record appends events for session gen and notifies observers.
func (d *Detector) record(gen uint64, events ...activity.Event) bool {
	ok := d.apply(gen, func() {
		for _, ev := range events {
			d.log.Append(ev)
		}
	})
	if !ok {
		return false
	}
	for _, ev := range events {
		d.logger.Info("suspicious activity", "type", ev.Type, "severity", ev.Severity, "id", ev.ID)
		d.obs.EventRecorded(ev)
		d.publish(ev)
	}
	return true
}

// Report builds a detection report from the current state.
func (d *Detector) Report() report.Report {
	d.mu.Lock()
	in := report.Input{
		Now:              d.now(),
		Monitoring:       d.state == StateMonitoring,
		Events:           d.log.Events(),
		Clipboard:        d.clipboard,
		Typing:           d.patterns,
		SignatureVersion: d.sigs.Version,
	}
	// Build copies what it keeps, so it can run under the lock.
	r := report.Build(in)
	d.mu.Unlock()
	return r
}

// Level returns the log-based threat level.
func (d *Detector) Level() threat.Level {
	return threat.Assess(d.log)
}

// Events returns a copy of the activity log.
func (d *Detector) Events() []activity.Event {
	return d.log.Events()
}

// RecentEvents returns events younger than window.
func (d *Detector) RecentEvents(window time.Duration) []activity.Event {
	return d.log.Recent(window)
}

// ClipboardHistory returns a copy of the clipboard entries.
func (d *Detector) ClipboardHistory() []report.ClipboardEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]report.ClipboardEntry, len(d.clipboard))
	copy(out, d.clipboard)
	return out
}

// TypingPatterns returns a copy of the typing samples in time order.
func (d *Detector) TypingPatterns() []typing.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]typing.Snapshot, len(d.patterns))
	copy(out, d.patterns)
	return out
}

// ClearHistory empties the activity log, clipboard history, and typing
// samples. The run state is unchanged.
func (d *Detector) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Clear()
	d.clipboard = nil
	d.patterns = nil
	d.seenProc = make(map[string]bool)
	d.seenConn = make(map[string]bool)
	d.filter.Purge()
	d.logger.Info("detection history cleared")
}

// Inspector returns the platform inspector in use.
func (d *Detector) Inspector() inspect.Inspector {
	return d.inspector
}

// Filter returns the process-name filter in use.
func (d *Detector) Filter() *procfilter.Filter {
	return d.filter
}

// Signatures returns the signature set in use.
func (d *Detector) Signatures() *signatures.Set {
	return d.sigs
}

// Subscribe returns a channel receiving every recorded event and a function
// that ends the subscription. Events are dropped for a subscriber whose
// buffer is full.
func (d *Detector) Subscribe(buffer int) (<-chan activity.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan activity.Event, buffer)
	d.subMu.Lock()
	d.subs[ch] = struct{}{}
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, ch)
			d.subMu.Unlock()
			close(ch)
		})
	}
}

func (d *Detector) publish(ev activity.Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// waitTicks blocks until every running tick body has returned.
func (d *Detector) waitTicks() {
	d.ticks.Wait()
}

// errUnsupported reports whether err means the capability is missing.
func errUnsupported(err error) bool {
	return errors.Is(err, inspect.ErrUnsupported)
}
