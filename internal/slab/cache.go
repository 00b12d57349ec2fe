package slab

import (
	"runtime"
	"unsafe"

	"go.uber.org/multierr"
)

// cacheRec is the per-size cache: a name, the rounded object size, the
// layout tag, and the ordered circular slab list. Cache records are
// themselves slab objects, drawn from the cache-of-caches.
type cacheRec struct {
	name      [cacheNameLen]byte
	objSize   uintptr
	align     uintptr
	layout    Layout
	slabCount int
	slabs     uintptr
	freeHead  uintptr
	hash      uintptr
}

const cacheRecSize = unsafe.Sizeof(cacheRec{})

func (c *cacheRec) nameString() string {
	n := 0
	for n < len(c.name) && c.name[n] != 0 {
		n++
	}
	return string(c.name[:n])
}

// allocPage asks the source for one page. Under Sleep the request is
// retried until the source yields; under NoSleep the first refusal
// surfaces as ErrNoMemory.
func (ctx *Context) allocPage(flags AllocFlag) (uintptr, error) {
	for {
		p, err := ctx.src.AllocPage()
		if err == nil {
			return addrOf(p), nil
		}
		if flags == NoSleep {
			return 0, multierr.Append(ErrNoMemory, err)
		}
		runtime.Gosched()
	}
}

// grow adds one slab at the list tail and points freeHead at it when
// the old head has no capacity left.
func (ctx *Context) grow(c *cacheRec, flags AllocFlag) error {
	page, err := ctx.allocPage(flags)
	if err != nil {
		return err
	}

	var sa uintptr
	if c.layout == LargeLayout {
		sa, err = ctx.initLargeSlab(c, page, flags)
		if err != nil {
			if e := ctx.src.FreePage(bytesAt(page, int(ctx.pageSize))); e != nil {
				err = multierr.Append(err, e)
			}
			return err
		}
	} else {
		sa = ctx.initSmallSlab(c.objSize, page, 0)
	}

	listInsertTail(c, sa)
	c.slabCount++
	if c.freeHead == 0 || slabAt(c.freeHead).full() {
		c.freeHead = sa
	}
	ctx.log.Debug(logDebugPrefix+"grew cache",
		"cache", c.nameString(),
		"slabCount", c.slabCount,
		"capacity", slabAt(sa).size)
	return nil
}

// cacheAlloc hands out one buffer address in O(1): consult freeHead,
// growing only when nothing has capacity.
func (ctx *Context) cacheAlloc(ca uintptr, flags AllocFlag) (uintptr, error) {
	c := cacheAt(ca)
	for c.freeHead == 0 || slabAt(c.freeHead).full() {
		if err := ctx.grow(c, flags); err != nil {
			return 0, err
		}
	}
	sa := c.freeHead
	s := slabAt(sa)
	var b uintptr
	if c.layout == LargeLayout {
		b = largeTake(s)
	} else {
		b = smallTake(s)
	}
	if s.full() {
		markComplete(c, sa)
	}
	return b, nil
}

// cacheFree pushes a buffer back onto its slab's freelist. A buffer
// the hash does not know is a protocol violation; it is logged and
// dropped rather than corrupting a freelist.
func (ctx *Context) cacheFree(ca, b uintptr) {
	c := cacheAt(ca)

	var sa uintptr
	if c.layout == LargeLayout {
		ctlAddr := ctx.hashGet(c.hash, b)
		if ctlAddr == 0 {
			ctx.log.Error(logDebugPrefix+"free of unknown buffer ignored",
				"cache", c.nameString(),
				"buf", b)
			return
		}
		sa = bufctlAt(ctlAddr).slab
		s := slabAt(sa)
		wasFull := s.full()
		largeReturn(s, ctlAddr)
		if wasFull {
			markPartial(c, sa)
		}
	} else {
		sa = ctx.smallSlabOf(b)
		s := slabAt(sa)
		wasFull := s.full()
		smallReturn(s, b)
		if wasFull {
			markPartial(c, sa)
		}
	}

	if slabAt(sa).empty() && c.slabCount > 1 {
		markEmpty(c, sa)
		if err := ctx.reap(c, false); err != nil {
			ctx.log.Error(logDebugPrefix+"reap failed", "cache", c.nameString(), "err", err)
		}
	}
}

// reap reclaims empty slabs from the tail. The normal mode keeps the
// last slab resident; force removes everything and is only used by
// destroy and teardown, whose callers promise no outstanding buffers.
func (ctx *Context) reap(c *cacheRec, force bool) error {
	var err error
	reaped := 0
	for c.slabCount > 0 {
		tail := slabAt(c.slabs).prev
		ts := slabAt(tail)
		if !force && (c.slabCount == 1 || !ts.empty()) {
			break
		}
		start := ts.start
		removeSlab(c, tail)
		if c.layout == LargeLayout {
			ctx.releaseLargeSlab(c, tail)
		}
		if e := ctx.src.FreePage(bytesAt(start, int(ctx.pageSize))); e != nil {
			err = multierr.Append(err, e)
		}
		reaped++
	}
	if c.slabCount > 0 && c.freeHead == 0 {
		tail := slabAt(c.slabs).prev
		if !slabAt(tail).full() {
			c.freeHead = tail
		}
	}
	if reaped > 0 {
		ctx.log.Debug(logDebugPrefix+"reaped slabs",
			"cache", c.nameString(),
			"reaped", reaped,
			"slabCount", c.slabCount)
	}
	return err
}

// createCache validates parameters, rounds the object size for
// alignment and the freelist link word, picks the layout, and grows the
// first slab eagerly so the first Alloc is O(1).
func (ctx *Context) createCache(name string, size, align int, flags AllocFlag) (uintptr, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	if align < 0 {
		return 0, ErrInvalidAlign
	}
	al := uintptr(align)
	if al != 0 && (!isPow2(al) || al > ctx.pageSize) {
		return 0, ErrInvalidAlign
	}

	objSize := uintptr(size)
	if al != 0 {
		objSize = roundUp(objSize, al)
	}
	objSize = roundUp(objSize, wordSize)
	if objSize > ctx.pageSize {
		return 0, ErrObjectTooLarge
	}

	layout := SmallLayout
	if objSize >= ctx.pageSize/8 {
		layout = LargeLayout
	}

	ca, err := ctx.cacheAlloc(ctx.caches, flags)
	if err != nil {
		return 0, err
	}
	c := cacheAt(ca)
	*c = cacheRec{
		objSize: objSize,
		align:   al,
		layout:  layout,
	}
	copy(c.name[:cacheNameLen-1], name)

	if layout == LargeLayout && !ctx.bootstrapping {
		h, err := ctx.newHash(flags)
		if err != nil {
			ctx.cacheFree(ctx.caches, ca)
			return 0, err
		}
		c.hash = h
	}

	if err := ctx.grow(c, flags); err != nil {
		if c.hash != 0 {
			ctx.releaseHash(c.hash)
		}
		ctx.cacheFree(ctx.caches, ca)
		return 0, err
	}
	ctx.log.Debug(logDebugPrefix+"created cache",
		"cache", c.nameString(),
		"objSize", objSize,
		"layout", layout.String())
	return ca, nil
}

// destroyCache releases the hash first, then force-reaps every slab,
// then returns the cache record itself. The caller promises there are
// no outstanding buffers.
func (ctx *Context) destroyCache(ca uintptr) error {
	c := cacheAt(ca)
	if c.hash != 0 {
		ctx.releaseHash(c.hash)
		c.hash = 0
	}
	err := ctx.reap(c, true)
	ctx.cacheFree(ctx.caches, ca)
	return err
}
