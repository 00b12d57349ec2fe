package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSmallSlabFreelist(t *testing.T) {
	ctx, src := newTestContext(t)
	defer func() { require.NoError(t, ctx.Close()) }()

	page, err := src.AllocPage()
	require.NoError(t, err)
	base := addrOf(page)

	const objSize = 32
	sa := ctx.initSmallSlab(objSize, base, 0)
	s := slabAt(sa)

	want := int(ctx.tailOff / objSize)
	require.Equal(t, want, s.size)
	require.Equal(t, base, s.start)
	require.Zero(t, s.refcount)
	require.Equal(t, base, s.first)
	require.Equal(t, base+uintptr(want-1)*objSize, s.last)

	// Walk the chain: every link steps one object forward, the last is nil.
	n := 0
	for b := s.first; b != 0; b = *wordAt(b) {
		require.Equal(t, base+uintptr(n)*objSize, b)
		n++
	}
	assert.Equal(t, want, n)

	require.NoError(t, src.FreePage(page))
}

func TestInitSmallSlabOffsetReservesSlots(t *testing.T) {
	ctx, src := newTestContext(t)
	defer func() { require.NoError(t, ctx.Close()) }()

	page, err := src.AllocPage()
	require.NoError(t, err)
	base := addrOf(page)

	const objSize = 64
	sa := ctx.initSmallSlab(objSize, base, 1)
	s := slabAt(sa)

	want := int(ctx.tailOff/objSize) - 1
	assert.Equal(t, want, s.size)
	assert.Equal(t, base+objSize, s.first, "slot 0 must stay reserved")

	require.NoError(t, src.FreePage(page))
}

func TestSmallTakeReturn(t *testing.T) {
	ctx, src := newTestContext(t)
	defer func() { require.NoError(t, ctx.Close()) }()

	page, err := src.AllocPage()
	require.NoError(t, err)
	base := addrOf(page)

	const objSize = 256
	sa := ctx.initSmallSlab(objSize, base, 0)
	s := slabAt(sa)
	capacity := s.size

	taken := make([]uintptr, 0, capacity)
	for i := 0; i < capacity; i++ {
		taken = append(taken, smallTake(s))
	}
	require.True(t, s.full())
	require.Zero(t, s.first)
	require.Zero(t, s.last)

	smallReturn(s, taken[3])
	require.Equal(t, taken[3], s.first)
	require.Equal(t, taken[3], s.last)
	require.Equal(t, capacity-1, s.refcount)

	smallReturn(s, taken[0])
	require.Equal(t, taken[3], s.first, "free discipline is FIFO within a slab")
	require.Equal(t, taken[0], s.last)

	require.Equal(t, taken[3], smallTake(s))
	require.Equal(t, taken[0], smallTake(s))
	require.True(t, s.full())

	require.NoError(t, src.FreePage(page))
}

func TestSmallSlabOfMasksToPage(t *testing.T) {
	ctx, src := newTestContext(t)
	defer func() { require.NoError(t, ctx.Close()) }()

	page, err := src.AllocPage()
	require.NoError(t, err)
	base := addrOf(page)

	sa := ctx.initSmallSlab(128, base, 0)
	for _, off := range []uintptr{0, 128, 256, ctx.tailOff - 128} {
		assert.Equal(t, sa, ctx.smallSlabOf(base+off))
	}

	require.NoError(t, src.FreePage(page))
}
