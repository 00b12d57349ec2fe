//go:build unix

package backing

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapSource serves pages from anonymous private mappings. The kernel
// guarantees page alignment, so no slicing tricks are needed. Live
// mappings are tracked by base address so FreePage can hand the exact
// region back to munmap.
type MmapSource struct {
	pageSize int
	pages    map[uintptr][]byte
}

var _ PageSource = (*MmapSource)(nil)

// NewMmapSource returns an MmapSource using the OS page size.
func NewMmapSource() (*MmapSource, error) {
	ps := os.Getpagesize()
	if !validPageSize(ps) {
		return nil, ErrInvalidPageSize
	}
	return &MmapSource{
		pageSize: ps,
		pages:    make(map[uintptr][]byte),
	}, nil
}

func (m *MmapSource) PageSize() int { return m.pageSize }

func (m *MmapSource) AllocPage() ([]byte, error) {
	b, err := unix.Mmap(-1, 0, m.pageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("backing: mmap: %w", err)
	}
	m.pages[uintptr(unsafe.Pointer(&b[0]))] = b
	return b, nil
}

func (m *MmapSource) FreePage(p []byte) error {
	if len(p) == 0 {
		return ErrForeignPage
	}
	base := uintptr(unsafe.Pointer(&p[0]))
	orig, ok := m.pages[base]
	if !ok {
		return ErrForeignPage
	}
	delete(m.pages, base)
	if err := unix.Munmap(orig); err != nil {
		return fmt.Errorf("backing: munmap: %w", err)
	}
	return nil
}

// Outstanding reports how many mappings are currently live.
func (m *MmapSource) Outstanding() int { return len(m.pages) }

// Close unmaps every outstanding page.
func (m *MmapSource) Close() error {
	var first error
	for base, orig := range m.pages {
		delete(m.pages, base)
		if err := unix.Munmap(orig); err != nil && first == nil {
			first = fmt.Errorf("backing: munmap: %w", err)
		}
	}
	return first
}
