//go:build !linux

package overlay

import "log/slog"

// NewNotifier reports ErrUnsupported outside Linux.
func NewNotifier(perMinute int, logger *slog.Logger) (*Notifier, error) {
	return nil, ErrUnsupported
}
