//go:build !linux && !darwin && !windows

package clipboard

// New returns a provider that always fails; clipboard access is not
// implemented on this platform.
func New() Provider {
	return unavailable{}
}
