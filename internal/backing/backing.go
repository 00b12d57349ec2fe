// Package backing provides page-granular memory sources for the slab
// engine. A PageSource hands out page-aligned, page-sized regions; the
// engine never asks for anything else.
package backing

import (
	"errors"
)

var (
	// ErrNoPage is returned when the source cannot satisfy a page request.
	ErrNoPage = errors.New("backing: page source exhausted")

	// ErrForeignPage is returned when a page is freed that this source
	// did not hand out.
	ErrForeignPage = errors.New("backing: page was not allocated by this source")

	// ErrInvalidPageSize is returned for page sizes that are not a power
	// of two or are too small to carve into buffers.
	ErrInvalidPageSize = errors.New("backing: page size must be a power of two >= 512")
)

// MinPageSize is the smallest page size a source may advertise.
const MinPageSize = 512

// PageSource is the host allocator contract. AllocPage returns a slice
// of exactly PageSize bytes whose base address is a multiple of
// PageSize. FreePage takes back a slice previously returned by
// AllocPage on the same source.
type PageSource interface {
	PageSize() int
	AllocPage() ([]byte, error)
	FreePage(p []byte) error
}

func validPageSize(n int) bool {
	return n >= MinPageSize && n&(n-1) == 0
}
