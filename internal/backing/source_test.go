package backing

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeapSourceValidatesPageSize(t *testing.T) {
	for _, bad := range []int{0, -1, 100, 1000, 4095} {
		_, err := NewHeapSource(bad)
		require.ErrorIs(t, err, ErrInvalidPageSize, "page size %d", bad)
	}
	for _, good := range []int{512, 4096, 16384} {
		src, err := NewHeapSource(good)
		require.NoError(t, err)
		require.Equal(t, good, src.PageSize())
	}
}

func TestHeapSourcePagesAreAligned(t *testing.T) {
	src, err := NewHeapSource(4096)
	require.NoError(t, err)

	pages := make([][]byte, 0, 16)
	for i := 0; i < 16; i++ {
		p, err := src.AllocPage()
		require.NoError(t, err)
		require.Len(t, p, 4096)
		base := uintptr(unsafe.Pointer(&p[0]))
		assert.Zero(t, base%4096, "page base not page-aligned")
		pages = append(pages, p)
	}
	require.Equal(t, 16, src.Outstanding())

	for _, p := range pages {
		require.NoError(t, src.FreePage(p))
	}
	assert.Zero(t, src.Outstanding())
}

func TestHeapSourceRejectsForeignPage(t *testing.T) {
	src, err := NewHeapSource(4096)
	require.NoError(t, err)

	require.ErrorIs(t, src.FreePage(make([]byte, 4096)), ErrForeignPage)
	require.ErrorIs(t, src.FreePage(nil), ErrForeignPage)

	// Double free of a real page is also foreign the second time.
	p, err := src.AllocPage()
	require.NoError(t, err)
	require.NoError(t, src.FreePage(p))
	require.ErrorIs(t, src.FreePage(p), ErrForeignPage)
}

func TestDefaultSource(t *testing.T) {
	src, err := NewDefaultSource()
	require.NoError(t, err)
	require.True(t, validPageSize(src.PageSize()))

	p, err := src.AllocPage()
	require.NoError(t, err)
	require.Len(t, p, src.PageSize())
	base := uintptr(unsafe.Pointer(&p[0]))
	assert.Zero(t, base%uintptr(src.PageSize()))

	// Pages must be writable end to end.
	p[0] = 0xAA
	p[len(p)-1] = 0x55

	require.NoError(t, src.FreePage(p))
}
