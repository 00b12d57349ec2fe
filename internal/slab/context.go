package slab

import (
	"errors"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/tuannm99/novaslab/internal/backing"
)

// ErrPageTooSmall is returned by NewContext when the source's page size
// cannot host the allocator's own metadata records.
var ErrPageTooSmall = errors.New("slab: page size too small for internal records")

// Context carries the allocator's shared state: the page source, the
// cached page geometry, and the five internal caches that hold cache
// records, slab records, bufctls, hash records and hash nodes. All of
// it is established once by NewContext; there are no package-level
// singletons.
type Context struct {
	src backing.PageSource
	log *slog.Logger

	pageSize uintptr
	pageMask uintptr
	tailOff  uintptr // offset of the small-layout tail record within a page

	caches  uintptr // cache-of-caches record
	nodes   uintptr // hash-node cache record
	hashes  uintptr // hash cache record
	slabs   uintptr // slab cache record (large layout)
	bufctls uintptr // bufctl cache record (large layout)

	bootstrapping bool
}

// NewContext bootstraps an allocator over the given page source.
//
// The chicken-and-egg between caches and the cache that holds them is
// broken by hand: one page becomes a small-layout slab whose first
// buffer slot holds the cache-of-caches record itself (the offset=1
// init path). The remaining internal caches are then created through
// the normal path with hash creation suppressed, and hashes are
// retrofitted afterwards for uniformity.
func NewContext(src backing.PageSource, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps := uintptr(src.PageSize())
	if !isPow2(ps) {
		return nil, backing.ErrInvalidPageSize
	}

	ctx := &Context{
		src:      src,
		log:      logger,
		pageSize: ps,
		pageMask: ps - 1,
		tailOff:  (ps - slabRecSize) &^ (wordSize - 1),
	}
	if ps/8 <= maxInternalRecSize() {
		return nil, ErrPageTooSmall
	}

	page, err := src.AllocPage()
	if err != nil {
		return nil, multierr.Append(ErrNoMemory, err)
	}
	base := addrOf(page)

	ccSize := roundUp(cacheRecSize, wordSize)
	cc := cacheAt(base)
	*cc = cacheRec{
		objSize: ccSize,
		layout:  SmallLayout,
	}
	copy(cc.name[:cacheNameLen-1], "cache-cache")
	sa := ctx.initSmallSlab(ccSize, base, 1)
	s := slabAt(sa)
	s.prev, s.next = sa, sa
	cc.slabs = sa
	cc.freeHead = sa
	cc.slabCount = 1
	ctx.caches = base

	ctx.bootstrapping = true
	internal := []struct {
		name string
		size uintptr
		dst  *uintptr
	}{
		{"hash-node-cache", hashNodeSize, &ctx.nodes},
		{"hash-cache", hashRecSize, &ctx.hashes},
		{"slab-cache", slabRecSize, &ctx.slabs},
		{"bufctl-cache", bufctlSize, &ctx.bufctls},
	}
	for _, ic := range internal {
		ca, err := ctx.createCache(ic.name, int(ic.size), 0, Sleep)
		if err != nil {
			cerr := ctx.Close()
			return nil, multierr.Append(err, cerr)
		}
		*ic.dst = ca
	}
	ctx.bootstrapping = false

	for _, ca := range []uintptr{ctx.caches, ctx.nodes, ctx.hashes, ctx.slabs, ctx.bufctls} {
		c := cacheAt(ca)
		if c.hash != 0 {
			continue
		}
		h, err := ctx.newHash(Sleep)
		if err != nil {
			cerr := ctx.Close()
			return nil, multierr.Append(err, cerr)
		}
		c.hash = h
	}

	ctx.log.Debug(logDebugPrefix + "bootstrap complete")
	return ctx, nil
}

func maxInternalRecSize() uintptr {
	m := roundUp(cacheRecSize, wordSize)
	for _, n := range []uintptr{slabRecSize, bufctlSize, hashRecSize, hashNodeSize} {
		if n > m {
			m = n
		}
	}
	return m
}

// PageSize reports the page size of the underlying source.
func (ctx *Context) PageSize() int { return int(ctx.pageSize) }

// NewCache creates a cache for objects of the given size and
// alignment. align must be zero or a power of two. The first slab is
// grown eagerly so the first Alloc never grows.
func (ctx *Context) NewCache(name string, size, align int) (*Cache, error) {
	ca, err := ctx.createCache(name, size, align, Sleep)
	if err != nil {
		return nil, err
	}
	return &Cache{ctx: ctx, rec: ca}, nil
}

// Close tears the allocator down: retrofit hashes first so the hash
// and node caches quiesce, then the internal caches in dependency
// order, then the cache-of-caches with its hand-built bootstrap slab.
// Every cache created through NewCache must be destroyed first.
func (ctx *Context) Close() error {
	if ctx.caches == 0 {
		return nil
	}
	var err error

	for _, ca := range []uintptr{ctx.caches, ctx.nodes, ctx.hashes, ctx.slabs, ctx.bufctls} {
		if ca == 0 {
			continue
		}
		c := cacheAt(ca)
		if c.hash != 0 {
			ctx.releaseHash(c.hash)
			c.hash = 0
		}
	}
	for _, ca := range []uintptr{ctx.bufctls, ctx.slabs, ctx.hashes, ctx.nodes} {
		if ca == 0 {
			continue
		}
		err = multierr.Append(err, ctx.reap(cacheAt(ca), true))
		ctx.cacheFree(ctx.caches, ca)
	}
	// The cache-of-caches record lives in its own bootstrap slab, whose
	// page this reap returns to the source, so reap a copy of it.
	cc := *cacheAt(ctx.caches)
	err = multierr.Append(err, ctx.reap(&cc, true))

	ctx.caches, ctx.nodes, ctx.hashes, ctx.slabs, ctx.bufctls = 0, 0, 0, 0, 0
	return err
}

// Cache is the public handle for one object cache.
type Cache struct {
	ctx *Context
	rec uintptr
}

// Alloc returns one object-sized buffer. The contents are
// indeterminate. Under NoSleep a refused page surfaces as ErrNoMemory
// with the cache unchanged.
func (c *Cache) Alloc(flags AllocFlag) ([]byte, error) {
	b, err := c.ctx.cacheAlloc(c.rec, flags)
	if err != nil {
		return nil, err
	}
	return bytesAt(b, int(cacheAt(c.rec).objSize)), nil
}

// Free returns a buffer obtained from Alloc on this cache. Double
// frees and cross-cache frees are the caller's bug and are not
// detected.
func (c *Cache) Free(p []byte) {
	if len(p) == 0 {
		return
	}
	c.ctx.cacheFree(c.rec, addrOf(p))
}

// Destroy releases everything the cache owns. The caller promises no
// buffers are outstanding.
func (c *Cache) Destroy() error {
	err := c.ctx.destroyCache(c.rec)
	c.rec = 0
	return err
}

// Name returns the cache name, truncated to the record's field width.
func (c *Cache) Name() string { return cacheAt(c.rec).nameString() }

// ObjectSize returns the effective object size after alignment and
// link-word rounding.
func (c *Cache) ObjectSize() int { return int(cacheAt(c.rec).objSize) }

// Layout reports which slab layout the cache uses.
func (c *Cache) Layout() Layout { return cacheAt(c.rec).layout }

// SlabCount returns the number of slabs the cache currently holds.
func (c *Cache) SlabCount() int { return cacheAt(c.rec).slabCount }

// Live returns the number of outstanding allocations.
func (c *Cache) Live() int {
	r := cacheAt(c.rec)
	if r.slabs == 0 {
		return 0
	}
	total := 0
	sa := r.slabs
	for {
		total += slabAt(sa).refcount
		sa = slabAt(sa).next
		if sa == r.slabs {
			break
		}
	}
	return total
}
