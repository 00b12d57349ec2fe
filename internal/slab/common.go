// Package slab implements a Bonwick-style slab allocator: per-size
// caches of page-backed slabs with O(1) allocate and free. Object
// metadata lives in the allocator's own caches, bootstrapped from a
// single hand-built slab.
package slab

import (
	"errors"
	"unsafe"
)

var logDebugPrefix = "slab: "

var (
	// ErrNoMemory is returned by Alloc when the backing source refuses a
	// page and the caller asked for NoSleep.
	ErrNoMemory = errors.New("slab: backing page source exhausted")

	// ErrInvalidSize is returned by NewCache for a non-positive object size.
	ErrInvalidSize = errors.New("slab: object size must be positive")

	// ErrInvalidAlign is returned by NewCache when the alignment is not
	// zero or a power of two no larger than the page size.
	ErrInvalidAlign = errors.New("slab: alignment must be zero or a power of two within the page")

	// ErrObjectTooLarge is returned by NewCache when a single object
	// would not fit in one page. Multi-page slabs are not supported.
	ErrObjectTooLarge = errors.New("slab: object does not fit in a page")
)

// AllocFlag controls what Alloc does when the cache must grow and the
// backing source cannot immediately provide a page.
type AllocFlag uint8

const (
	// Sleep permits growth to retry until the source yields a page.
	Sleep AllocFlag = iota
	// NoSleep makes Alloc fail fast with ErrNoMemory instead.
	NoSleep
)

// Layout selects how a cache keeps its per-buffer metadata.
type Layout uint8

const (
	// SmallLayout keeps freelist links inside free buffers and the slab
	// record at the page tail. Chosen for objects under pageSize/8.
	SmallLayout Layout = iota + 1
	// LargeLayout keeps slab records and bufctls off-page in internal
	// caches and indexes buffers through a hash.
	LargeLayout
)

func (l Layout) String() string {
	switch l {
	case SmallLayout:
		return "small"
	case LargeLayout:
		return "large"
	default:
		return "unknown"
	}
}

const (
	wordSize     = unsafe.Sizeof(uintptr(0))
	cacheNameLen = 32
	hashBuckets  = 32
)

// roundUp rounds n up to the next multiple of m. m must be a power of two.
func roundUp(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }

func isPow2(n uintptr) bool { return n != 0 && n&(n-1) == 0 }
