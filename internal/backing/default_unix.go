//go:build unix

package backing

// NewDefaultSource returns the preferred source for this platform.
func NewDefaultSource() (PageSource, error) {
	return NewMmapSource()
}
