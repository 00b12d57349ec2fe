package slab

import "unsafe"

// bufctl is the off-slab metadata record of the large layout: one per
// buffer, chained through next while the buffer is free. slab and buf
// are non-owning back-pointers.
type bufctl struct {
	next uintptr
	buf  uintptr
	slab uintptr
}

const bufctlSize = unsafe.Sizeof(bufctl{})

// initLargeSlab builds a slab whose page holds nothing but buffers.
// The slab record and one bufctl per buffer come from the internal
// caches, and every buffer is indexed in the cache's hash. On any
// failure the partial construction is unwound and nothing is left
// behind.
func (ctx *Context) initLargeSlab(c *cacheRec, page uintptr, flags AllocFlag) (uintptr, error) {
	sa, err := ctx.cacheAlloc(ctx.slabs, flags)
	if err != nil {
		return 0, err
	}
	n := int(ctx.pageSize / c.objSize)
	s := slabAt(sa)
	*s = slabRec{
		start: page,
		size:  n,
	}

	for i := 0; i < n; i++ {
		ca, err := ctx.cacheAlloc(ctx.bufctls, flags)
		if err != nil {
			ctx.unwindLargeSlab(c, sa)
			return 0, err
		}
		ctl := bufctlAt(ca)
		*ctl = bufctl{
			buf:  page + uintptr(i)*c.objSize,
			slab: sa,
		}
		if err := ctx.hashInsert(c.hash, ctl.buf, ca, flags); err != nil {
			ctx.cacheFree(ctx.bufctls, ca)
			ctx.unwindLargeSlab(c, sa)
			return 0, err
		}
		if s.last != 0 {
			bufctlAt(s.last).next = ca
		} else {
			s.first = ca
		}
		s.last = ca
	}
	return sa, nil
}

// unwindLargeSlab releases the bufctls and hash entries of a slab that
// failed mid-construction, then the slab record itself.
func (ctx *Context) unwindLargeSlab(c *cacheRec, sa uintptr) {
	s := slabAt(sa)
	for ca := s.first; ca != 0; {
		ctl := bufctlAt(ca)
		next := ctl.next
		ctx.hashRemove(c.hash, ctl.buf)
		ctx.cacheFree(ctx.bufctls, ca)
		ca = next
	}
	ctx.cacheFree(ctx.slabs, sa)
}

// releaseLargeSlab returns a reaped slab's bufctls and record to the
// internal caches. Hash entries are dropped unless the cache's hash is
// already gone, which only happens on the destroy path.
func (ctx *Context) releaseLargeSlab(c *cacheRec, sa uintptr) {
	s := slabAt(sa)
	for ca := s.first; ca != 0; {
		ctl := bufctlAt(ca)
		next := ctl.next
		if c.hash != 0 {
			ctx.hashRemove(c.hash, ctl.buf)
		}
		ctx.cacheFree(ctx.bufctls, ca)
		ca = next
	}
	ctx.cacheFree(ctx.slabs, sa)
}
