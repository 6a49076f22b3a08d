//go:build darwin

package clipboard

// New returns the clipboard provider for this system.
func New() Provider {
	ps := installed(&commandProvider{name: "pbpaste"})
	if len(ps) == 0 {
		return unavailable{}
	}
	return ps[0]
}
