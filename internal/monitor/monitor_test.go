package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clueless/internal/activity"
	"clueless/internal/clipboard"
	"clueless/internal/inspect"
	"clueless/internal/threat"
	"clueless/internal/typing"
)

const assistantReply = "Furthermore, I'd be happy to help with that request today.\n" +
	"1. First open the settings panel\n" +
	"2. Then choose the account tab\n" +
	"3. Finally save your changes"

type fakeInspector struct {
	mu      sync.Mutex
	procs   []inspect.Process
	conns   []inspect.Connection
	hidden  []string
	hidErr  error
	mem     map[int]string
	memScan bool

	// block, when set, holds Processes until closed.
	block   chan struct{}
	entered atomic.Int32
}

func (f *fakeInspector) Platform() string { return "test" }

func (f *fakeInspector) Processes(ctx context.Context) ([]inspect.Process, error) {
	f.entered.Add(1)
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inspect.Process(nil), f.procs...), nil
}

func (f *fakeInspector) Connections(context.Context) ([]inspect.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inspect.Connection(nil), f.conns...), nil
}

func (f *fakeInspector) HiddenProcesses(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hidden...), f.hidErr
}

func (f *fakeInspector) SupportsMemoryScan() bool { return f.memScan }

func (f *fakeInspector) ReadMemory(_ context.Context, pid int, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.mem[pid]
	if !ok {
		return "", errors.New("permission denied")
	}
	return s, nil
}

func (f *fakeInspector) SystemInfo(context.Context) (inspect.SystemInfo, error) {
	return inspect.SystemInfo{Platform: "test"}, nil
}

type fakeClipboard struct {
	mu   sync.Mutex
	text string
}

func (f *fakeClipboard) Name() string { return "fake" }

func (f *fakeClipboard) ReadText(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *fakeClipboard) set(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

type fakeTyping struct {
	snap typing.Snapshot
	err  error
}

func (f fakeTyping) Sample(context.Context) (typing.Snapshot, error) {
	if f.err != nil {
		return typing.Snapshot{}, f.err
	}
	s := f.snap
	s.Timestamp = time.Now()
	return s, nil
}

type countingObserver struct {
	mu      sync.Mutex
	skipped map[Kind]int
	failed  map[Kind]int
	states  []State
}

func newCountingObserver() *countingObserver {
	return &countingObserver{skipped: make(map[Kind]int), failed: make(map[Kind]int)}
}

func (o *countingObserver) StateChanged(s State) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}
func (o *countingObserver) TickRun(Kind) {}
func (o *countingObserver) TickSkipped(k Kind) {
	o.mu.Lock()
	o.skipped[k]++
	o.mu.Unlock()
}
func (o *countingObserver) ScanFailed(k Kind) {
	o.mu.Lock()
	o.failed[k]++
	o.mu.Unlock()
}
func (o *countingObserver) EventRecorded(activity.Event) {}

func (o *countingObserver) skips(k Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped[k]
}

func fastConfig() Config {
	return Config{
		ClipboardInterval: 5 * time.Millisecond,
		TypingInterval:    5 * time.Millisecond,
		MemoryInterval:    5 * time.Millisecond,
		HiddenInterval:    5 * time.Millisecond,
		ProcessInterval:   5 * time.Millisecond,
		MemoryScan:        true,
		HiddenScan:        true,
		ProcessScan:       true,
		ResolveEndpoints:  true,
	}
}

func newTestDetector(t *testing.T, insp *fakeInspector, clip *fakeClipboard, src typing.Source, obs Observer) *Detector {
	t.Helper()
	if clip == nil {
		clip = &fakeClipboard{}
	}
	if src == nil {
		src = fakeTyping{err: typing.ErrNoData}
	}
	d := New(Options{
		Config:    fastConfig(),
		Inspector: insp,
		Clipboard: clip,
		Typing:    src,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer:  obs,
		Lookup: func(_ context.Context, host string) ([]string, error) {
			if host == "api.anthropic.com" {
				return []string{"10.0.0.5"}, nil
			}
			return nil, errors.New("no such host")
		},
	})
	t.Cleanup(func() {
		_ = d.Stop()
		d.waitTicks()
	})
	return d
}

func countType(events []activity.Event, typ activity.Type) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestStartIdempotent(t *testing.T) {
	obs := newCountingObserver()
	d := newTestDetector(t, &fakeInspector{}, nil, nil, obs)
	assert.Equal(t, StateIdle, d.State())

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Monitoring())

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.Equal(t, StateIdle, d.State())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []State{StateMonitoring, StateIdle}, obs.states)
}

func TestStartCanceledContext(t *testing.T) {
	d := newTestDetector(t, &fakeInspector{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Start(ctx), context.Canceled)
	assert.False(t, d.Monitoring())
}

func TestParentContextEndsSession(t *testing.T) {
	d := newTestDetector(t, &fakeInspector{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !d.Monitoring() }, time.Second, 5*time.Millisecond)

	// A new session can start afterwards.
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Monitoring())
}

func TestProcessAndNetworkDetection(t *testing.T) {
	insp := &fakeInspector{
		procs: []inspect.Process{
			{PID: 10, Name: "cluely"},
			{PID: 11, Name: "chrome-claude-helper"},
			{PID: 12, Name: "bash"},
		},
		conns: []inspect.Connection{
			{Proto: "tcp", Remote: "api.openai.com:443", State: "ESTABLISHED"},
			{Proto: "tcp", Remote: "10.0.0.5:443", State: "ESTABLISHED"},
			{Proto: "tcp", Remote: "93.184.216.34:443", State: "ESTABLISHED"},
		},
	}
	d := newTestDetector(t, insp, nil, nil, nil)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		ev := d.Events()
		return countType(ev, activity.TypeAIProcess) == 1 && countType(ev, activity.TypeAINetwork) == 2
	}, time.Second, 5*time.Millisecond)

	// Later ticks do not repeat what was already reported.
	time.Sleep(30 * time.Millisecond)
	ev := d.Events()
	assert.Equal(t, 1, countType(ev, activity.TypeAIProcess))
	assert.Equal(t, 2, countType(ev, activity.TypeAINetwork))

	for _, e := range ev {
		if e.Type == activity.TypeAINetwork && e.Details["remote"] == "10.0.0.5:443" {
			assert.Equal(t, "api.anthropic.com", e.Details["endpoint"])
		}
		assert.Equal(t, activity.SeverityMedium, e.Severity)
	}

	// A restart keeps the reported set; clearing the history resets it.
	require.NoError(t, d.Stop())
	d.waitTicks()
	require.NoError(t, d.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, countType(d.Events(), activity.TypeAIProcess))

	d.ClearHistory()
	require.Eventually(t, func() bool {
		return countType(d.Events(), activity.TypeAIProcess) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHiddenAndMemoryScan(t *testing.T) {
	insp := &fakeInspector{
		procs: []inspect.Process{
			{PID: 20, Name: "notes"},
			{PID: 21, Name: "clueless"},
			{PID: 22, Name: "locked"},
		},
		mem:     map[int]string{20: "config\nOPENAI api_key=...\n", 21: "anthropic claude"},
		hidden:  []string{"cluely", "Finder"},
		memScan: true,
	}
	d := newTestDetector(t, insp, nil, nil, nil)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		ev := d.Events()
		// Scans repeat every tick; three high events make the level critical.
		return countType(ev, activity.TypeMemorySignature) > 0 && countType(ev, activity.TypeHiddenProcesses) > 0 &&
			len(ev) >= 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop())
	d.waitTicks()

	for _, e := range d.Events() {
		assert.Equal(t, activity.SeverityHigh, e.Severity)
		switch e.Type {
		case activity.TypeMemorySignature:
			assert.Equal(t, "notes", e.Details["process"])
			assert.Equal(t, []string{"openai", "api_key"}, e.Details["signatures"])
		case activity.TypeHiddenProcesses:
			assert.Equal(t, []string{"cluely"}, e.Details["processes"])
		}
	}
	assert.Equal(t, threat.LevelCritical, d.Level())
}

func TestHiddenUnsupportedIsQuiet(t *testing.T) {
	obs := newCountingObserver()
	insp := &fakeInspector{hidErr: inspect.ErrUnsupported}
	d := newTestDetector(t, insp, nil, nil, obs)
	require.NoError(t, d.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, d.Stop())
	d.waitTicks()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Zero(t, obs.failed[KindHidden])
	assert.Empty(t, d.Events())
}

func TestClipboardInjection(t *testing.T) {
	clip := &fakeClipboard{}
	d := newTestDetector(t, &fakeInspector{}, clip, nil, nil)
	require.NoError(t, d.Start(context.Background()))

	clip.set("just a short note")
	require.Eventually(t, func() bool { return len(d.ClipboardHistory()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, d.Events())

	clip.set(assistantReply)
	require.Eventually(t, func() bool {
		return countType(d.Events(), activity.TypeClipboardInjection) == 1
	}, time.Second, 5*time.Millisecond)

	hist := d.ClipboardHistory()
	require.Len(t, hist, 2)
	assert.False(t, hist[0].Suspicious)
	assert.True(t, hist[1].Suspicious)
	assert.Len(t, []rune(hist[1].Content), ClipboardPreviewLength+3)

	ev := d.Events()[0]
	assert.Equal(t, activity.SeverityHigh, ev.Severity)
	assert.Equal(t, clipboard.Preview(assistantReply, ClipboardPreviewLength), ev.Details["content"])
}

func TestTypingSamples(t *testing.T) {
	src := fakeTyping{snap: typing.Snapshot{AvgKeystrokeInterval: 20, BackspaceRatio: 0, PauseFrequency: 0.01}}
	d := newTestDetector(t, &fakeInspector{}, nil, src, nil)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return countType(d.Events(), activity.TypeUnnaturalTyping) >= 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop())
	d.waitTicks()

	assert.Equal(t, len(d.TypingPatterns()), countType(d.Events(), activity.TypeUnnaturalTyping))
	assert.Equal(t, activity.SeverityLow, d.Events()[0].Severity)
}

func TestStopDiscardsLateResults(t *testing.T) {
	insp := &fakeInspector{
		procs: []inspect.Process{{PID: 10, Name: "cluely"}},
		block: make(chan struct{}),
	}
	d := newTestDetector(t, insp, nil, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool { return insp.entered.Load() > 0 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for an in-flight scan")
	}

	close(insp.block)
	d.waitTicks()
	assert.Empty(t, d.Events())
}

func TestSlowTickIsSkipped(t *testing.T) {
	obs := newCountingObserver()
	insp := &fakeInspector{block: make(chan struct{})}
	d := newTestDetector(t, insp, nil, nil, obs)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool { return obs.skips(KindProcess) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), insp.entered.Load())

	require.NoError(t, d.Stop())
	close(insp.block)
}

func TestClearHistory(t *testing.T) {
	clip := &fakeClipboard{text: assistantReply}
	insp := &fakeInspector{procs: []inspect.Process{{PID: 10, Name: "cluely"}}}
	d := newTestDetector(t, insp, clip, nil, nil)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		ev := d.Events()
		return countType(ev, activity.TypeAIProcess) == 1 && countType(ev, activity.TypeClipboardInjection) == 1
	}, time.Second, 5*time.Millisecond)

	d.ClearHistory()
	assert.True(t, d.Monitoring())
	assert.Empty(t, d.ClipboardHistory())

	// Running processes are reported again after a clear.
	require.Eventually(t, func() bool {
		return countType(d.Events(), activity.TypeAIProcess) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReport(t *testing.T) {
	clip := &fakeClipboard{text: assistantReply}
	d := newTestDetector(t, &fakeInspector{}, clip, nil, nil)

	r := d.Report()
	assert.False(t, r.Monitoring)
	assert.True(t, r.Empty())
	assert.Equal(t, threat.LevelLow, r.OverallThreatLevel)

	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool { return len(d.Events()) == 1 }, time.Second, 5*time.Millisecond)

	r = d.Report()
	assert.True(t, r.Monitoring)
	assert.Equal(t, 1, r.ClipboardAnalysis.TotalEntries)
	assert.Equal(t, 1, r.ClipboardAnalysis.SuspiciousEntries)
	assert.Equal(t, threat.LevelHigh, r.OverallThreatLevel)
	assert.Equal(t, 30, r.RiskScore)
	assert.Equal(t, d.Signatures().Version, r.SignatureVersion)
}

func TestSubscribe(t *testing.T) {
	clip := &fakeClipboard{}
	d := newTestDetector(t, &fakeInspector{}, clip, nil, nil)
	ch, cancel := d.Subscribe(4)
	require.NoError(t, d.Start(context.Background()))

	clip.set(assistantReply)
	select {
	case ev := <-ch:
		assert.Equal(t, activity.TypeClipboardInjection, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
