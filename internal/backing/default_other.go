//go:build !unix

package backing

import "os"

// NewDefaultSource returns the preferred source for this platform.
func NewDefaultSource() (PageSource, error) {
	return NewHeapSource(os.Getpagesize())
}
