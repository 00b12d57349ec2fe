package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaslab/internal/backing"
)

const testPageSize = 4096

// newTestContext bootstraps a context over a deterministic heap source.
func newTestContext(t *testing.T) (*Context, *backing.HeapSource) {
	t.Helper()

	src, err := backing.NewHeapSource(testPageSize)
	require.NoError(t, err)

	ctx, err := NewContext(src, nil)
	require.NoError(t, err)
	return ctx, src
}

// limitedSource refuses page requests once its budget runs out.
// Negative budget means unlimited.
type limitedSource struct {
	*backing.HeapSource
	budget int
}

func (l *limitedSource) AllocPage() ([]byte, error) {
	if l.budget == 0 {
		return nil, backing.ErrNoPage
	}
	if l.budget > 0 {
		l.budget--
	}
	return l.HeapSource.AllocPage()
}

// checkCacheInvariants asserts the properties that must hold after
// every public call: refcount bounds, full < partial < empty ordering,
// freeHead at the first non-full slab, slabCount matching the list,
// and (large layout) one hash entry per buffer.
func checkCacheInvariants(t *testing.T, ctx *Context, c *Cache) {
	t.Helper()

	r := cacheAt(c.rec)
	if r.slabs == 0 {
		require.Zero(t, r.slabCount)
		require.Zero(t, r.freeHead)
		return
	}

	count := 0
	live := 0
	bufs := 0
	phase := 0 // 0 full, 1 partial, 2 empty
	sawFreeHead := false
	beforeFreeHead := r.freeHead != 0

	sa := r.slabs
	for {
		s := slabAt(sa)
		require.GreaterOrEqual(t, s.refcount, 0)
		require.LessOrEqual(t, s.refcount, s.size)

		p := 1
		if s.full() {
			p = 0
		} else if s.empty() {
			p = 2
		}
		require.GreaterOrEqual(t, p, phase, "slab list ordering violated")
		phase = p

		if sa == r.freeHead {
			sawFreeHead = true
			beforeFreeHead = false
			require.False(t, s.full(), "freeHead points at a full slab")
		} else if beforeFreeHead {
			require.True(t, s.full(), "non-full slab in front of freeHead")
		}

		count++
		live += s.refcount
		bufs += s.size
		sa = s.next
		if sa == r.slabs {
			break
		}
	}

	require.Equal(t, r.slabCount, count, "slabCount does not match list length")
	if r.freeHead == 0 {
		require.Equal(t, 0, phase, "freeHead nil but a non-full slab exists")
	} else {
		require.True(t, sawFreeHead, "freeHead not on the list")
	}
	require.Equal(t, live, c.Live())

	if r.layout == LargeLayout {
		require.Equal(t, bufs, ctx.hashEntries(r.hash),
			"hash entry count does not match the buffers of the cache's slabs")
	}
}

func pageBaseOf(ctx *Context, p []byte) uintptr {
	return addrOf(p) &^ ctx.pageMask
}
