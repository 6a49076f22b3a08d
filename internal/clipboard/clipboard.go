// Package clipboard watches the system clipboard for text changes.
//
// Reading is delegated to a platform Provider. The Watcher polls it and
// reports a Change only when the text differs from the last value it saw.
// Comparison uses a BLAKE2b-256 fingerprint so the previous text does not
// have to be retained.
package clipboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrUnavailable is returned when no clipboard access method works on this
// system.
var ErrUnavailable = errors.New("clipboard: no clipboard access available")

// DefaultInterval is the default polling period.
const DefaultInterval = 500 * time.Millisecond

// Provider reads the current clipboard text.
type Provider interface {
	ReadText(ctx context.Context) (string, error)
	// Name identifies the access method, for logs.
	Name() string
}

// Change is a newly observed clipboard value.
type Change struct {
	Content   string
	Timestamp time.Time
}

// Watcher polls a Provider and emits changes.
type Watcher struct {
	provider Provider
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	last     [blake2b.Size256]byte
	hasLast  bool
	failures int
}

// NewWatcher creates a Watcher. A nil logger uses slog.Default.
func NewWatcher(p Provider, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		provider: p,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Check reads the clipboard once. It returns the change and true when the
// text differs from the previously seen value.
//
// The first read after construction is compared against the empty string, so
// an empty clipboard produces no change while pre-existing text does.
func (w *Watcher) Check(ctx context.Context) (Change, bool, error) {
	text, err := w.provider.ReadText(ctx)
	if err != nil {
		return Change{}, false, err
	}

	sum := blake2b.Sum256([]byte(text))

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasLast {
		w.last = blake2b.Sum256(nil)
		w.hasLast = true
	}
	if sum == w.last {
		return Change{}, false, nil
	}
	w.last = sum
	return Change{Content: text, Timestamp: w.now()}, true, nil
}

// Run polls until ctx is done, calling fn for each change. Read errors are
// logged once per failure streak and otherwise ignored.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			change, ok, err := w.Check(ctx)
			if err != nil {
				if w.failures == 0 && ctx.Err() == nil {
					w.logger.Warn("clipboard read failed", "provider", w.provider.Name(), "error", err)
				}
				w.failures++
				continue
			}
			if w.failures > 0 {
				w.logger.Debug("clipboard read recovered", "after_failures", w.failures)
				w.failures = 0
			}
			if ok {
				fn(change)
			}
		}
	}
}

// Interval returns the polling period.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Truncate shortens content for storage and display: the first limit
// characters followed by "...". Content within the limit is returned as is.
func Truncate(content string, limit int) string {
	r := []rune(content)
	if len(r) <= limit {
		return content
	}
	return string(r[:limit]) + "..."
}

// Preview is the event form of content: the first limit characters, always
// followed by "...".
func Preview(content string, limit int) string {
	r := []rune(content)
	if len(r) > limit {
		r = r[:limit]
	}
	return string(r) + "..."
}
