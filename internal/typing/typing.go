// Package typing produces keystroke timing snapshots.
//
// A Source yields one Snapshot per sampling tick. The Simulated source draws
// values from fixed distributions and is the default. The Recorder source
// computes snapshots from key events pushed by a real capture hook, so the
// detection logic does not change when the data source does.
//
// Only timing is recorded. Key identities are never seen by this package.
package typing

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrNoData is returned by a Source that has nothing to report this tick.
var ErrNoData = errors.New("typing: no keystrokes since last sample")

// Thresholds for the two timing predicates.
const (
	unnaturalInterval  = 40.0
	unnaturalBackspace = 0.01
	unnaturalPause     = 0.02

	suspiciousInterval  = 60.0
	suspiciousBackspace = 0.02
)

// Snapshot is one sample of typing behaviour.
type Snapshot struct {
	Timestamp            time.Time `json:"timestamp" yaml:"timestamp"`
	AvgKeystrokeInterval float64   `json:"avgKeystrokeInterval" yaml:"avgKeystrokeInterval"` // milliseconds
	BackspaceRatio       float64   `json:"backspaceRatio" yaml:"backspaceRatio"`
	PauseFrequency       float64   `json:"pauseFrequency" yaml:"pauseFrequency"`
	BurstTyping          bool      `json:"burstTyping" yaml:"burstTyping"`
}

// Unnatural reports whether the sample is fast, error-free, and pause-free
// enough to raise an event.
func (s Snapshot) Unnatural() bool {
	return s.AvgKeystrokeInterval < unnaturalInterval &&
		s.BackspaceRatio < unnaturalBackspace &&
		s.PauseFrequency < unnaturalPause
}

// Suspicious reports whether the sample counts toward the suspicious typing
// total in reports. It is looser than Unnatural.
func (s Snapshot) Suspicious() bool {
	return s.AvgKeystrokeInterval < suspiciousInterval &&
		s.BackspaceRatio < suspiciousBackspace
}

// Source yields typing snapshots.
type Source interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// Simulated draws snapshots at random. It stands in for real capture.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulated creates a simulated source. A zero seed picks a random one.
func NewSimulated(seed uint64) *Simulated {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulated{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Sample implements Source.
func (s *Simulated) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Timestamp:            s.now(),
		AvgKeystrokeInterval: 80 + s.rng.Float64()*50,
		BackspaceRatio:       s.rng.Float64() * 0.15,
		PauseFrequency:       s.rng.Float64() * 0.3,
		BurstTyping:          s.rng.Float64() > 0.9,
	}, nil
}

// KeyEvent is a single key press as delivered by a capture hook.
type KeyEvent struct {
	Time      time.Time
	Backspace bool
}

// RecorderConfig tunes how a Recorder interprets gaps between key presses.
type RecorderConfig struct {
	// PauseThreshold is the gap at or above which an interval is a pause.
	PauseThreshold time.Duration
	// BurstInterval is the gap below which consecutive keys form a burst.
	BurstInterval time.Duration
	// BurstLength is the number of consecutive short gaps that make a burst.
	BurstLength int
}

// DefaultRecorderConfig returns the default pause and burst settings.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		PauseThreshold: 750 * time.Millisecond,
		BurstInterval:  50 * time.Millisecond,
		BurstLength:    5,
	}
}

// Recorder accumulates key events and summarizes them on Sample.
type Recorder struct {
	cfg     RecorderConfig
	mu      sync.Mutex
	events  []KeyEvent
	carried bool // events[0] belongs to the previous window
	now     func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = def.PauseThreshold
	}
	if cfg.BurstInterval <= 0 {
		cfg.BurstInterval = def.BurstInterval
	}
	if cfg.BurstLength <= 0 {
		cfg.BurstLength = def.BurstLength
	}
	return &Recorder{cfg: cfg, now: time.Now}
}

// Record adds a key event. Events must arrive in time order.
func (r *Recorder) Record(ev KeyEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Sample summarizes the events recorded since the previous Sample. The last
// event is carried over so the first interval of the next window is not lost.
// It returns ErrNoData when fewer than two key presses are available.
func (r *Recorder) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	r.mu.Lock()
	events, carried := r.events, r.carried
	if len(events) >= 2 {
		r.events = []KeyEvent{events[len(events)-1]}
		r.carried = true
	}
	r.mu.Unlock()

	if len(events) < 2 {
		return Snapshot{}, ErrNoData
	}
	return r.summarize(events, carried), nil
}

func (r *Recorder) summarize(events []KeyEvent, carried bool) Snapshot {
	var (
		total      time.Duration
		pauses     int
		backspaces int
		run        int
		burst      bool
	)
	intervals := len(events) - 1
	for i := 1; i < len(events); i++ {
		gap := events[i].Time.Sub(events[i-1].Time)
		total += gap
		if gap >= r.cfg.PauseThreshold {
			pauses++
		}
		if gap < r.cfg.BurstInterval {
			run++
			if run >= r.cfg.BurstLength {
				burst = true
			}
		} else {
			run = 0
		}
	}
	// A carried-over first event was already counted last window.
	keys := events
	if carried {
		keys = events[1:]
	}
	for _, ev := range keys {
		if ev.Backspace {
			backspaces++
		}
	}

	return Snapshot{
		Timestamp:            r.now(),
		AvgKeystrokeInterval: float64(total.Microseconds()) / 1000 / float64(intervals),
		BackspaceRatio:       float64(backspaces) / float64(len(keys)),
		PauseFrequency:       float64(pauses) / float64(intervals),
		BurstTyping:          burst,
	}
}
